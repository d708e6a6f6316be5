package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var (
	baseURL   = flag.String("base", "http://localhost:3000", "server base URL")
	pairCount = flag.Int("pairs", 50, "number of user pairs")
	msgCount  = flag.Int("messages", 20, "messages per user")
)

type loginResponse struct {
	AccessToken string `json:"accessToken"`
	User        struct {
		ID string `json:"id"`
	} `json:"user"`
}

type frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

var received int64

func main() {
	flag.Parse()
	log.Printf("🔥 STARTING STRESS TEST: %d Users, %d Messages each...", *pairCount*2, *msgCount)
	start := time.Now()
	var wg sync.WaitGroup

	// Pairs: user 0a talks to user 0b, 1a to 1b...
	for i := 0; i < *pairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Printf("✅ LOAD TEST COMPLETE in %s, %d messages delivered", time.Since(start), atomic.LoadInt64(&received))
}

func runPair(pairID int) {
	pass := "password123"
	a, errA := authenticate(fmt.Sprintf("u_%d_a@load.test", pairID), pass)
	b, errB := authenticate(fmt.Sprintf("u_%d_b@load.test", pairID), pass)
	if errA != nil || errB != nil {
		log.Printf("❌ Auth failed for pair %d: %v %v", pairID, errA, errB)
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go spamChat(&wsWg, a, b.User.ID)
	go spamChat(&wsWg, b, a.User.ID)
	wsWg.Wait()
}

// authenticate registers (ignoring "already registered") and logs in.
func authenticate(email, password string) (*loginResponse, error) {
	resp, err := postJSON("/api/register", map[string]string{"email": email, "password": password, "name": email})
	if err == nil {
		resp.Body.Close()
	}

	resp, err = postJSON("/api/login", map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login %s: status %d", email, resp.StatusCode)
	}

	var data loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

func spamChat(wg *sync.WaitGroup, me *loginResponse, peerID string) {
	defer wg.Done()

	wsURL := "ws" + strings.TrimPrefix(*baseURL, "http") + "/ws?token=" + me.AccessToken
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", me.User.ID, err)
		return
	}
	defer conn.Close()

	go func() {
		for {
			var ev frame
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			if ev.Event == "new-private-message" {
				atomic.AddInt64(&received, 1)
			}
		}
	}()

	for i := 0; i < *msgCount; i++ {
		err := conn.WriteJSON(frame{
			Event: "send-private-message",
			Data: map[string]string{
				"receiverId": peerID,
				"text":       fmt.Sprintf("LoadTest Msg %d from %s", i, me.User.ID),
			},
		})
		if err != nil {
			log.Printf("❌ Send Fail [%s]: %v", me.User.ID, err)
			break
		}
		// Small sleep to simulate a real network
		time.Sleep(10 * time.Millisecond)
	}
	// Give the peer's pushes time to arrive before closing.
	time.Sleep(500 * time.Millisecond)
	log.Printf("✅ %s finished sending %d msgs", me.User.ID, *msgCount)
}

func postJSON(endpoint string, data interface{}) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	return http.Post(*baseURL+endpoint, "application/json", bytes.NewBuffer(jsonData))
}
