//go:build ignore
// +build ignore

// Package main provides a manual concurrency stress test for the issue desk API.
//
// Usage:
//
//	[SERVER_URL=http://host:port] BOOK_ID=<uuid> ADMIN_TOKEN=<jwt> USER_TOKENS=<jwt1>,<jwt2>,... go run ./scripts/concurrency_test.go
//
// What it does:
//  1. Fires one goroutine per user token, all requesting the same book at once.
//     Requests never reserve a copy, so every one of them may succeed.
//  2. Fires one goroutine per successful request, all approving at once as the admin.
//     Approval consumes the copy under a row lock, so at most available_copies succeed
//     and the rest must fail with 400 "No copies available".
//  3. Re-reads the book and checks 0 <= available_copies <= total_copies.
//
// Prerequisites:
//   - Server must be running (librarydesk serve).
//   - The book exists and each token belongs to a distinct USER with no active issue for it.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultServerAddr = "http://localhost:8080"

type callResult struct {
	Who        int
	StatusCode int
	Body       map[string]interface{}
	Err        error
}

type book struct {
	Title           string `json:"title"`
	TotalCopies     int    `json:"total_copies"`
	AvailableCopies int    `json:"available_copies"`
}

var client = &http.Client{Timeout: 10 * time.Second}

func main() {
	serverAddr := os.Getenv("SERVER_URL")
	if serverAddr == "" {
		serverAddr = defaultServerAddr
	}
	bookID := os.Getenv("BOOK_ID")
	adminToken := os.Getenv("ADMIN_TOKEN")
	var userTokens []string
	for _, t := range strings.Split(os.Getenv("USER_TOKENS"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			userTokens = append(userTokens, t)
		}
	}

	if bookID == "" || adminToken == "" || len(userTokens) == 0 {
		log.Fatal("Usage: BOOK_ID=<uuid> ADMIN_TOKEN=<jwt> USER_TOKENS=<jwt1,jwt2,...> go run ./scripts/concurrency_test.go")
	}

	before, err := getBook(serverAddr, adminToken, bookID)
	if err != nil {
		log.Fatalf("load book: %v", err)
	}

	fmt.Printf("=== Issue Desk Concurrency Test ===\n")
	fmt.Printf("Server : %s\n", serverAddr)
	fmt.Printf("Book   : %s (%q, %d/%d available)\n", bookID, before.Title, before.AvailableCopies, before.TotalCopies)
	fmt.Printf("Users  : %d\n\n", len(userTokens))

	// Phase 1: every user requests the same book.
	requests := fanOut(len(userTokens), func(i int) callResult {
		return call(http.MethodPost, serverAddr+"/issues/request-issue/"+bookID, userTokens[i])
	})

	var issueIDs []string
	for _, r := range requests {
		if r.Err == nil && r.StatusCode == http.StatusCreated {
			issue, _ := r.Body["issue"].(map[string]interface{})
			if id, ok := issue["id"].(string); ok {
				issueIDs = append(issueIDs, id)
			}
			continue
		}
		fmt.Printf("  [REQ ] user#%d status=%d body=%v err=%v\n", r.Who, r.StatusCode, r.Body, r.Err)
	}
	fmt.Printf("Requests accepted: %d of %d\n\n", len(issueIDs), len(userTokens))

	// Phase 2: the admin approves them all at once.
	approvals := fanOut(len(issueIDs), func(i int) callResult {
		return call(http.MethodPut, serverAddr+"/issues/admin/approve-issue/"+issueIDs[i], adminToken)
	})

	var approved, noStock, failures int
	for _, r := range approvals {
		switch {
		case r.Err != nil:
			failures++
			fmt.Printf("  [ERR ] issue#%d err=%v\n", r.Who, r.Err)
		case r.StatusCode == http.StatusOK:
			approved++
		case r.StatusCode == http.StatusBadRequest && r.Body["error"] == "No copies available":
			noStock++
		default:
			failures++
			fmt.Printf("  [FAIL] issue#%d status=%d body=%v\n", r.Who, r.StatusCode, r.Body)
		}
	}

	after, err := getBook(serverAddr, adminToken, bookID)
	if err != nil {
		log.Fatalf("reload book: %v", err)
	}

	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Approved      : %d\n", approved)
	fmt.Printf("No copies left: %d\n", noStock)
	fmt.Printf("Failures      : %d\n", failures)
	fmt.Printf("Available     : %d -> %d (total %d)\n\n", before.AvailableCopies, after.AvailableCopies, after.TotalCopies)

	fmt.Println("--- Invariant Check ---")
	ok := true
	if approved > before.AvailableCopies {
		ok = false
		fmt.Printf("[BROKEN] %d approvals for %d available copies\n", approved, before.AvailableCopies)
	}
	if after.AvailableCopies < 0 || after.AvailableCopies > after.TotalCopies {
		ok = false
		fmt.Printf("[BROKEN] available_copies=%d outside [0, %d]\n", after.AvailableCopies, after.TotalCopies)
	}
	if after.AvailableCopies != before.AvailableCopies-approved {
		ok = false
		fmt.Printf("[BROKEN] available_copies moved by %d for %d approvals\n", before.AvailableCopies-after.AvailableCopies, approved)
	}
	if ok {
		fmt.Println("Inventory ledger is consistent.")
	}

	if !ok || failures > 0 {
		os.Exit(1)
	}
}

// fanOut runs n calls behind a barrier so they hit the server together.
func fanOut(n int, fn func(i int) callResult) []callResult {
	results := make([]callResult, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			r := fn(idx)
			r.Who = idx
			results[idx] = r
		}(i)
	}
	close(start)
	wg.Wait()
	return results
}

func call(method, url, token string) callResult {
	req, err := http.NewRequest(method, url, bytes.NewReader(nil))
	if err != nil {
		return callResult{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return callResult{Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var parsed map[string]interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return callResult{StatusCode: resp.StatusCode, Err: fmt.Errorf("bad JSON: %s", raw)}
	}
	return callResult{StatusCode: resp.StatusCode, Body: parsed}
}

func getBook(serverAddr, token, id string) (*book, error) {
	req, err := http.NewRequest(http.MethodGet, serverAddr+"/books/"+id, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, raw)
	}
	var b book
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		return nil, err
	}
	return &b, nil
}
