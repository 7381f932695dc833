// gateway-sim is a local stand-in for the SMS gateway. It accepts the same
// POST body the service sends, logs every message, and can inject failures
// and latency for testing the retry path.
//
// Failure injection: any phone number ending in -fail-suffix gets a 500.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"
)

type sendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

func main() {
	var (
		port       = flag.String("port", getenv("PORT", "9090"), "listen port")
		apiKey     = flag.String("api-key", getenv("GATEWAY_API_KEY", ""), "required X-Api-Key value, empty disables the check")
		failSuffix = flag.String("fail-suffix", getenv("FAIL_SUFFIX", ""), "phone suffix that triggers a 500 response")
		maxLatency = flag.Duration("max-latency", 0, "random response delay upper bound")
	)
	flag.Parse()

	var sent int
	mux := http.NewServeMux()
	mux.HandleFunc("/send", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if *apiKey != "" && r.Header.Get("X-Api-Key") != *apiKey {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}

		var req sendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if strings.TrimSpace(req.Phone) == "" || strings.TrimSpace(req.Message) == "" {
			writeError(w, http.StatusBadRequest, "phone and message required")
			return
		}

		if *maxLatency > 0 {
			time.Sleep(time.Duration(rand.Int63n(int64(*maxLatency))))
		}

		if *failSuffix != "" && strings.HasSuffix(req.Phone, *failSuffix) {
			log.Printf("FAIL  phone=%s len=%d", req.Phone, len(req.Message))
			writeError(w, http.StatusInternalServerError, "simulated provider failure")
			return
		}

		sent++
		id := fmt.Sprintf("sim-%d-%d", time.Now().UnixNano(), sent)
		log.Printf("SENT  phone=%s id=%s\n----\n%s\n----", req.Phone, id, req.Message)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sendResponse{MessageID: id})
	})

	addr := ":" + *port
	log.Printf("gateway-sim listening on %s (fail-suffix=%q)", addr, *failSuffix)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
