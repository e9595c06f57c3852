// Command shadow_compare replays read-only attendance endpoints against the
// legacy backend and this API and reports response differences. It is meant
// to run against seeded staging data during the cutover.
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
	"reflect"
	"strings"
	"time"
)

type endpoint struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Critical bool   `json:"critical"`
}

type probeConfig struct {
	Endpoints []endpoint `json:"endpoints"`
}

type probe struct {
	Endpoint       endpoint
	LegacyStatus   int
	GoStatus       int
	StatusMatch    bool
	BodyMatch      bool
	Error          error
	DurationGo     time.Duration
	DurationLegacy time.Duration
}

func main() {
	var (
		goBase        string
		legacyBase    string
		endpointsPath string
		token         string
		timeout       time.Duration
	)

	flag.StringVar(&goBase, "go-base", "http://localhost:8080", "Go API base URL")
	flag.StringVar(&legacyBase, "legacy-base", "http://localhost:3000", "Legacy API base URL")
	flag.StringVar(&endpointsPath, "endpoints", filepath.Join("scripts", "shadow_compare", "endpoints.json"), "Path to JSON endpoints file")
	flag.StringVar(&token, "token", "", "Bearer token sent to both backends")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	endpoints, err := loadEndpoints(endpointsPath)
	if err != nil {
		log.Fatalf("failed to load endpoints: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	var (
		probes       []probe
		breaking     int
		optionalDiff int
	)

	for _, e := range endpoints {
		p := compareEndpoint(client, goBase, legacyBase, token, e)
		if p.Error != nil {
			if e.Critical {
				breaking++
			}
		} else if !p.StatusMatch || !p.BodyMatch {
			if e.Critical {
				breaking++
			} else {
				optionalDiff++
			}
		}
		probes = append(probes, p)
	}

	printReport(probes)

	fmt.Printf("Breaking diffs: %d, Optional diffs: %d\n", breaking, optionalDiff)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadEndpoints(path string) ([]endpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg probeConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("no endpoints defined in %s", path)
	}
	return cfg.Endpoints, nil
}

func compareEndpoint(client *http.Client, goBase, legacyBase, token string, e endpoint) probe {
	p := probe{Endpoint: e}
	goResp, goDur, goErr := performRequest(client, goBase, token, e)
	legacyResp, legacyDur, legacyErr := performRequest(client, legacyBase, token, e)
	p.DurationGo = goDur
	p.DurationLegacy = legacyDur

	if goErr != nil {
		p.Error = fmt.Errorf("go request failed: %w", goErr)
		return p
	}
	if legacyErr != nil {
		p.Error = fmt.Errorf("legacy request failed: %w", legacyErr)
		return p
	}

	p.GoStatus = goResp.StatusCode
	p.LegacyStatus = legacyResp.StatusCode
	p.StatusMatch = p.GoStatus == p.LegacyStatus

	defer goResp.Body.Close()
	defer legacyResp.Body.Close()

	goBody, err := io.ReadAll(goResp.Body)
	if err != nil {
		p.Error = fmt.Errorf("read go body: %w", err)
		return p
	}
	legacyBody, err := io.ReadAll(legacyResp.Body)
	if err != nil {
		p.Error = fmt.Errorf("read legacy body: %w", err)
		return p
	}

	p.BodyMatch = bodiesEqual(goBody, legacyBody)

	return p
}

func performRequest(client *http.Client, base, token string, e endpoint) (*http.Response, time.Duration, error) {
	if client == nil {
		return nil, 0, errors.New("nil client")
	}
	method := strings.ToUpper(strings.TrimSpace(e.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := e.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := strings.TrimRight(base, "/") + path

	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return nil, 0, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	return resp, time.Since(start), nil
}

func bodiesEqual(a, b []byte) bool {
	if bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b)) {
		return true
	}

	var aj, bj interface{}
	if err := json.Unmarshal(a, &aj); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bj); err != nil {
		return false
	}
	normalize(&aj)
	normalize(&bj)
	return reflect.DeepEqual(aj, bj)
}

func normalize(v *interface{}) {
	switch val := (*v).(type) {
	case map[string]interface{}:
		for k, v2 := range val {
			normalize(&v2)
			val[k] = v2
		}
	case []interface{}:
		for i, v2 := range val {
			normalize(&v2)
			val[i] = v2
		}
	case float64:
		if val == float64(int64(val)) {
			*v = int64(val)
		}
	}
}

func printReport(results []probe) {
	fmt.Println("Shadow Compare Report")
	fmt.Println("======================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if !res.StatusMatch || !res.BodyMatch {
			status = "DIFF"
		}
		fmt.Printf("[%s] %s %s\n", status, res.Endpoint.Method, res.Endpoint.Path)
		fmt.Printf("  Go Status: %d (%s)\n", res.GoStatus, res.DurationGo)
		fmt.Printf("  Legacy Status: %d (%s)\n", res.LegacyStatus, res.DurationLegacy)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
		} else {
			fmt.Printf("  Status match: %t | Body match: %t | Critical: %t\n", res.StatusMatch, res.BodyMatch, res.Endpoint.Critical)
		}
	}
}
