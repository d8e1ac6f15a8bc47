// Package main tails the admin event feed from a running server.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

type event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

func main() {
	host := flag.String("host", "localhost:8375", "API server host")
	login := flag.String("login", "root@soundcheck.local", "Admin email or username")
	password := flag.String("password", "", "Admin password")
	token := flag.String("token", "", "Use an existing access token instead of logging in")
	flag.Parse()

	accessToken := *token
	if accessToken == "" {
		var err error
		accessToken, err = authenticate(*host, *login, *password)
		if err != nil {
			log.Fatalf("Login failed: %v", err)
		}
	}

	u := url.URL{Scheme: "ws", Host: *host, Path: "/api/ws/admin"}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+accessToken)

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		if resp != nil {
			log.Fatalf("Dial failed (%d): %v", resp.StatusCode, err)
		}
		log.Fatalf("Dial failed: %v", err)
	}
	defer func() { _ = conn.Close() }()
	log.Printf("Connected to %s", u.String())

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("Read error: %v", err)
				}
				return
			}
			printEvent(raw)
		}
	}()

	select {
	case <-done:
	case <-interrupt:
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}

func printEvent(raw []byte) {
	var ev event
	if err := json.Unmarshal(raw, &ev); err != nil {
		fmt.Printf("%s %s\n", time.Now().Format(time.TimeOnly), raw)
		return
	}
	payload, _ := json.Marshal(ev.Payload)
	fmt.Printf("%s %-36s %s\n", time.Now().Format(time.TimeOnly), ev.Type, payload)
}

func authenticate(host, login, password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("-password or -token is required")
	}
	body, _ := json.Marshal(map[string]string{"login": login, "password": password})

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(fmt.Sprintf("http://%s/api/auth/login", host), "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed with status %d", resp.StatusCode)
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Token, nil
}
