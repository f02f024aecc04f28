// Command target serves GET endpoints for exercising barrage locally.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

func main() {
	port := flag.Int("port", 8080, "Listening port")
	failEvery := flag.Int("fail-every", 5, "Every Nth request to /flaky returns 503")
	flag.Parse()

	if *port <= 0 {
		log.Fatalf("port must be > 0")
	}

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("target server listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, newMux(*failEvery)))
}

func newMux(failEvery int) *http.ServeMux {
	var flakyCount atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/status/", handleStatus)
	mux.HandleFunc("/slow", handleSlow)
	mux.HandleFunc("/redirect/", handleRedirect)
	mux.HandleFunc("/flaky", func(w http.ResponseWriter, r *http.Request) {
		n := flakyCount.Add(1)
		if failEvery > 0 && n%int64(failEvery) == 0 {
			respondJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "flaky", "request": n})
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"ok": true, "request": n})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			respondJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"ok":         true,
			"path":       r.URL.Path,
			"client":     r.Header.Get("X-Barrage-Client"),
			"user_agent": r.UserAgent(),
		})
	})
	return mux
}

// handleStatus answers /status/{code} with that status code.
func handleStatus(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/status/"))
	if err != nil || code < 100 || code > 599 {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid status code"})
		return
	}
	respondJSON(w, code, map[string]any{"status": code})
}

// handleSlow sleeps for ?ms= milliseconds before answering.
func handleSlow(w http.ResponseWriter, r *http.Request) {
	ms, _ := strconv.Atoi(r.URL.Query().Get("ms"))
	if ms <= 0 {
		ms = 100
	}
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
	case <-r.Context().Done():
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"slept_ms": ms})
}

// handleRedirect answers /redirect/{n} with a chain of n redirects ending at /.
func handleRedirect(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/redirect/"))
	if err != nil || n < 0 {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid redirect count"})
		return
	}
	if n == 0 {
		respondJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/redirect/%d", n-1), http.StatusFound)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
