package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("Usage: %s <access-token> [server-addr]", os.Args[0])
	}

	accessToken := os.Args[1]
	serverAddr := "http://localhost:3001"
	if len(os.Args) > 2 {
		serverAddr = "http://localhost" + os.Args[2]
	}

	payload, err := json.Marshal(map[string]string{"accessToken": accessToken})
	if err != nil {
		log.Fatalf("Failed to encode request: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, serverAddr+"/api/guest-token", bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost:3000")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Failed to read response: %v", err)
	}

	var result struct {
		Token string `json:"token"`
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &result)

	if resp.StatusCode != http.StatusOK || result.Token == "" {
		fmt.Printf("❌ Guest token DENIED\n")
		fmt.Printf("Status: %d\n", resp.StatusCode)
		fmt.Printf("Error: %s\n", result.Error)
		os.Exit(1)
	}

	fmt.Println("✅ Guest token issued")
	fmt.Printf("   Token length: %d characters\n", len(result.Token))
	previewLen := min(len(result.Token), 80)
	fmt.Printf("   Token preview: %s...\n", result.Token[:previewLen])
	fmt.Printf("   CORS origin: %s\n", resp.Header.Get("Access-Control-Allow-Origin"))
}
