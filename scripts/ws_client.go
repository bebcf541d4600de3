// Package main submits a demo job and prints its WebSocket events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"

	"github.com/gorilla/websocket"
)

type jobEvent struct {
	Type  string          `json:"type"`
	JobID string          `json:"jobId"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// depot plus three patients, two workers
	body := []byte(`{
		"distanceMatrix": [[0,2,4,5],[2,0,3,6],[4,3,0,2],[5,6,2,0]],
		"workerNames": ["Ann","Bob"],
		"preferences": {"1":0,"2":0,"3":1}
	}`)
	resp, err := http.Post(base+"/v1/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusAccepted {
		log.Fatalf("submit: %s", resp.Status)
	}
	var job struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		log.Fatal(err)
	}
	log.Printf("Job ID: %s", job.ID)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/jobs/" + job.ID + "/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	// the server closes the socket after the terminal event
	for {
		var evt jobEvent
		if err := c.ReadJSON(&evt); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Printf("read: %v", err)
			}
			return
		}
		log.Printf("WS <- %s: %s", evt.Type, string(evt.Data))
	}
}
