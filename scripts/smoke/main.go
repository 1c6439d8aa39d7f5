// Package main runs a smoke pass against a running front desk console.
//
// It checks health, logs in when a password is given, loads the grid, opens
// the slot menu, and optionally books and removes a time block.
//
// Usage:
//
//	go run ./scripts/smoke --api=http://localhost:8080 [--password=...] [--mutate --date=2025-01-07 --start=16:00]
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Response shapes
// ---------------------------------------------------------------------------

type gridView struct {
	Status struct {
		WeekStart  string `json:"week_start"`
		Stale      bool   `json:"stale"`
		Generation uint64 `json:"generation"`
	} `json:"status"`
	Providers []struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
	} `json:"providers"`
	Slots []json.RawMessage `json:"slots"`
}

type slotAction struct {
	Actions   []string `json:"actions"`
	Durations []int    `json:"durations"`
}

type timeBlock struct {
	ID string `json:"id"`
}

type checkResult struct {
	Name   string
	Pass   bool
	Detail string
}

// ---------------------------------------------------------------------------
// Globals
// ---------------------------------------------------------------------------

var (
	flagAPI      string
	flagPassword string
	flagMutate   bool
	flagDate     string
	flagStart    string
	token        string
	client       = &http.Client{Timeout: 20 * time.Second}
)

func init() {
	flag.StringVar(&flagAPI, "api", "http://localhost:8080", "Console base URL")
	flag.StringVar(&flagPassword, "password", "", "Staff password (or STAFF_PASSWORD env)")
	flag.BoolVar(&flagMutate, "mutate", false, "Create and delete a time block")
	flag.StringVar(&flagDate, "date", "", "Date for the slot checks, YYYY-MM-DD (default: grid week start)")
	flag.StringVar(&flagStart, "start", "16:00", "Slot start for the slot checks, HH:MM")
}

// ---------------------------------------------------------------------------
// HTTP
// ---------------------------------------------------------------------------

func call(method, path string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, strings.TrimRight(flagAPI, "/")+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, truncate(strings.TrimSpace(string(raw)), 160))
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}

// ---------------------------------------------------------------------------
// Checks
// ---------------------------------------------------------------------------

func checkHealth() checkResult {
	var body map[string]any
	if _, err := call(http.MethodGet, "/health", nil, &body); err != nil {
		return checkResult{"health", false, err.Error()}
	}
	return checkResult{"health", true, fmt.Sprintf("status=%v stale=%v", body["status"], body["stale"])}
}

func checkLogin(password string) checkResult {
	var body struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if _, err := call(http.MethodPost, "/auth/login", map[string]string{"password": password}, &body); err != nil {
		return checkResult{"login", false, err.Error()}
	}
	token = body.Token
	return checkResult{"login", token != "", "expires " + body.ExpiresAt.Format(time.RFC3339)}
}

func checkGrid(view *gridView) checkResult {
	if _, err := call(http.MethodGet, "/api/grid", nil, view); err != nil {
		return checkResult{"grid", false, err.Error()}
	}
	if len(view.Providers) == 0 || len(view.Slots) == 0 {
		return checkResult{"grid", false, fmt.Sprintf("providers=%d slots=%d", len(view.Providers), len(view.Slots))}
	}
	return checkResult{"grid", true, fmt.Sprintf("week=%s providers=%d slots=%d generation=%d stale=%v",
		view.Status.WeekStart, len(view.Providers), len(view.Slots), view.Status.Generation, view.Status.Stale)}
}

func checkSlotClick(provider, date string) checkResult {
	var action slotAction
	req := map[string]string{"provider_id": provider, "date": date, "start": flagStart}
	if _, err := call(http.MethodPost, "/api/slots/click", req, &action); err != nil {
		return checkResult{"slot click", false, err.Error()}
	}
	return checkResult{"slot click", len(action.Actions) > 0, fmt.Sprintf("actions=%v durations=%v", action.Actions, action.Durations)}
}

func checkTimeBlock(provider, date string) []checkResult {
	start, err := time.Parse("15:04", flagStart)
	if err != nil {
		return []checkResult{{"time block", false, "bad --start: " + err.Error()}}
	}
	form := map[string]string{
		"provider_id": provider,
		"date":        date,
		"start":       flagStart,
		"end":         start.Add(15 * time.Minute).Format("15:04"),
		"label":       "Meeting",
		"notes":       "smoke test",
	}
	var block timeBlock
	if _, err := call(http.MethodPost, "/api/time-blocks", form, &block); err != nil {
		return []checkResult{{"create time block", false, err.Error()}}
	}
	results := []checkResult{{"create time block", block.ID != "", "id=" + block.ID}}
	if _, err := call(http.MethodDelete, "/api/time-blocks/"+block.ID, nil, nil); err != nil {
		return append(results, checkResult{"delete time block", false, err.Error()})
	}
	return append(results, checkResult{"delete time block", true, "id=" + block.ID})
}

// ---------------------------------------------------------------------------
// Report
// ---------------------------------------------------------------------------

func printReport(results []checkResult) int {
	fmt.Println()
	fmt.Println("==========================================")
	fmt.Println("  FRONT DESK SMOKE REPORT")
	fmt.Println("==========================================")
	failed := 0
	for _, r := range results {
		mark := "✅"
		if !r.Pass {
			mark = "❌"
			failed++
		}
		fmt.Printf("%s %-18s %s\n", mark, r.Name, r.Detail)
	}
	fmt.Println()
	if failed == 0 {
		fmt.Println("✅ ALL CHECKS PASSED")
	} else {
		fmt.Printf("❌ %d CHECKS FAILED\n", failed)
	}
	return failed
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	flag.Parse()

	password := flagPassword
	if password == "" {
		password = os.Getenv("STAFF_PASSWORD")
	}

	results := []checkResult{checkHealth()}
	if password != "" {
		results = append(results, checkLogin(password))
	}

	var view gridView
	grid := checkGrid(&view)
	results = append(results, grid)
	if grid.Pass {
		provider := view.Providers[0].ID
		date := flagDate
		if date == "" {
			date = view.Status.WeekStart
		}
		results = append(results, checkSlotClick(provider, date))
		if flagMutate {
			results = append(results, checkTimeBlock(provider, date)...)
		}
	}

	if printReport(results) > 0 {
		os.Exit(1)
	}
}
