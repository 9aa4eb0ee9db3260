// Command smoke_check checks a running API with a list of requests and fails
// when a critical route answers with an unexpected status or envelope.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type target struct {
	Method   string          `json:"method"`
	Path     string          `json:"path"`
	Body     json.RawMessage `json:"body,omitempty"`
	Status   int             `json:"status"`
	ErrCode  string          `json:"error_code,omitempty"`
	Critical bool            `json:"critical"`
}

type config struct {
	Targets []target `json:"targets"`
}

type result struct {
	Target   target
	Status   int
	ErrCode  string
	Duration time.Duration
	Error    error
}

func (r result) ok() bool {
	if r.Error != nil || r.Status != r.Target.Status {
		return false
	}
	return r.Target.ErrCode == "" || r.Target.ErrCode == r.ErrCode
}

func main() {
	var (
		base        string
		targetsPath string
		timeout     time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "smoke_check", "targets.json"), "Path to JSON targets file")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	var (
		results  []result
		breaking int
		optional int
	)
	for _, t := range targets {
		res := check(client, base, t)
		if !res.ok() {
			if t.Critical {
				breaking++
			} else {
				optional++
			}
		}
		results = append(results, res)
	}

	printReport(results)

	fmt.Printf("Breaking failures: %d, Optional failures: %d\n", breaking, optional)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return cfg.Targets, nil
}

func check(client *http.Client, base string, tgt target) result {
	res := result{Target: tgt}
	if client == nil {
		res.Error = errors.New("nil client")
		return res
	}
	method := strings.ToUpper(strings.TrimSpace(tgt.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := tgt.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var body io.Reader
	if len(tgt.Body) > 0 {
		body = bytes.NewReader(tgt.Body)
	}
	req, err := http.NewRequest(method, strings.TrimRight(base, "/")+path, body)
	if err != nil {
		res.Error = err
		return res
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := client.Do(req)
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err
		return res
	}
	defer resp.Body.Close()

	res.Status = resp.StatusCode
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		res.Error = fmt.Errorf("read body: %w", err)
		return res
	}
	if resp.StatusCode >= http.StatusBadRequest {
		res.ErrCode, res.Error = errorCode(raw)
	}
	return res
}

// errorCode extracts error.code from the response envelope.
func errorCode(raw []byte) (string, error) {
	var env struct {
		Error *struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	if env.Error == nil {
		return "", errors.New("error response without error envelope")
	}
	return env.Error.Code, nil
}

func printReport(results []result) {
	fmt.Println("Smoke Check Report")
	fmt.Println("==================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if !res.ok() {
			status = "FAIL"
		}
		fmt.Printf("[%s] %s %s (%s)\n", status, res.Target.Method, res.Target.Path, res.Duration)
		fmt.Printf("  Status: got %d want %d", res.Status, res.Target.Status)
		if res.Target.ErrCode != "" {
			fmt.Printf(" | Code: got %q want %q", res.ErrCode, res.Target.ErrCode)
		}
		fmt.Printf(" | Critical: %t\n", res.Target.Critical)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
		}
	}
}
