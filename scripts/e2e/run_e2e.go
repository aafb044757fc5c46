// Package main runs end-to-end scenarios against a running MCP server over the
// SSE transport. The server is expected to point at the demo salon served by
// cmd/fakebackend, so the scenarios can assert on its services and masters.
//
// Usage:
//
//	MCP_BASE_URL=http://localhost:3000 go run scripts/e2e/run_e2e.go              # runs all
//	MCP_BASE_URL=http://localhost:3000 go run scripts/e2e/run_e2e.go book-cancel  # runs one
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

const (
	demoPhone    = "+79001234567"
	newPhone     = "+79005550002"
	responseWait = 30 * time.Second
)

var baseURL string

// ---------------------------------------------------------------------------
// Scenario definition
// ---------------------------------------------------------------------------

type scenario struct {
	Name string
	Fn   func(t *T, s *session)
}

// T is a lightweight test context for a single scenario.
type T struct {
	passed int
	failed int
	name   string
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...any) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

// ---------------------------------------------------------------------------
// SSE session
// ---------------------------------------------------------------------------

type rpcResponse struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type toolResult struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

type session struct {
	endpoint  string
	responses chan rpcResponse
	nextID    atomic.Int64
	body      interface{ Close() error }
}

func openSession() (*session, error) {
	resp, err := http.Get(baseURL + "/sse")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("open stream returned %d", resp.StatusCode)
	}

	s := &session{responses: make(chan rpcResponse, 16), body: resp.Body}
	endpoint := make(chan string, 1)

	go func() {
		defer close(s.responses)
		reader := bufio.NewReader(resp.Body)
		event := ""
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\r\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data := strings.TrimPrefix(line, "data: ")
				if event == "endpoint" {
					endpoint <- data
					continue
				}
				var r rpcResponse
				if json.Unmarshal([]byte(data), &r) == nil {
					s.responses <- r
				}
			}
		}
	}()

	select {
	case s.endpoint = <-endpoint:
		return s, nil
	case <-time.After(responseWait):
		resp.Body.Close()
		return nil, fmt.Errorf("no endpoint event within %s", responseWait)
	}
}

func (s *session) close() { _ = s.body.Close() }

func (s *session) call(method string, params any) (rpcResponse, error) {
	id := int(s.nextID.Add(1))
	body, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": id, "method": method, "params": params})
	resp, err := http.Post(baseURL+s.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return rpcResponse{}, err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return rpcResponse{}, fmt.Errorf("post returned %d", resp.StatusCode)
	}

	deadline := time.After(responseWait)
	for {
		select {
		case r, ok := <-s.responses:
			if !ok {
				return rpcResponse{}, fmt.Errorf("stream closed")
			}
			if r.ID == id {
				return r, nil
			}
		case <-deadline:
			return rpcResponse{}, fmt.Errorf("timed out waiting for response %d", id)
		}
	}
}

func (s *session) tool(name string, args map[string]any) (toolResult, error) {
	r, err := s.call("tools/call", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return toolResult{}, err
	}
	if r.Error != nil {
		return toolResult{}, fmt.Errorf("rpc error %d: %s", r.Error.Code, r.Error.Message)
	}
	var out toolResult
	if err := json.Unmarshal(r.Result, &out); err != nil {
		return toolResult{}, err
	}
	return out, nil
}

func (r toolResult) text() string {
	if len(r.Content) == 0 {
		return ""
	}
	return r.Content[0].Text
}

func tomorrow() string {
	return time.Now().AddDate(0, 0, 1).Format("2006-01-02")
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func scenarioHandshake(t *T, s *session) {
	r, err := s.call("initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"clientInfo":      map[string]string{"name": "e2e", "version": "0"},
	})
	if err != nil {
		t.fatalf("initialize: %v", err)
		return
	}
	t.check("initialize answers protocol version", strings.Contains(string(r.Result), `"protocolVersion":"2024-11-05"`))

	r, err = s.call("tools/list", map[string]any{})
	if err != nil {
		t.fatalf("tools/list: %v", err)
		return
	}
	for _, name := range []string{"book_appointment", "find_available_time", "find_client", "get_client_bookings", "cancel_booking", "get_services_list", "get_staff_list"} {
		t.check("lists "+name, strings.Contains(string(r.Result), `"name":"`+name+`"`))
	}
}

func scenarioCatalogue(t *T, s *session) {
	services, err := s.tool("get_services_list", nil)
	if err != nil {
		t.fatalf("get_services_list: %v", err)
		return
	}
	t.check("services are listed", strings.Contains(services.text(), "Стрижка женская"))
	t.check("inactive services are hidden", !strings.Contains(services.text(), "Укладка"))

	staff, err := s.tool("get_staff_list", nil)
	if err != nil {
		t.fatalf("get_staff_list: %v", err)
		return
	}
	t.check("masters are listed", strings.Contains(staff.text(), "Ольга Смирнова"))
}

func scenarioFindClient(t *T, s *session) {
	found, err := s.tool("find_client", map[string]any{"phone": "8 900 123-45-67"})
	if err != nil {
		t.fatalf("find_client: %v", err)
		return
	}
	t.check("known client found by local phone format", strings.Contains(found.text(), "Анна Петрова"))

	missing, err := s.tool("find_client", map[string]any{"phone": "+7 999 000 00 00"})
	if err != nil {
		t.fatalf("find_client: %v", err)
		return
	}
	t.check("unknown client reported", strings.Contains(missing.text(), "не найден"))
}

func scenarioFindTime(t *T, s *session) {
	res, err := s.tool("find_available_time", map[string]any{
		"service_name": "маникюр",
		"date_from":    tomorrow(),
		"date_to":      time.Now().AddDate(0, 0, 3).Format("2006-01-02"),
	})
	if err != nil {
		t.fatalf("find_available_time: %v", err)
		return
	}
	t.check("slots listed for manicure", strings.Contains(res.text(), "Ирина Ковалёва"))

	ambiguous, err := s.tool("find_available_time", map[string]any{
		"service_name": "стрижка",
		"date_from":    tomorrow(),
		"date_to":      tomorrow(),
	})
	if err != nil {
		t.fatalf("find_available_time: %v", err)
		return
	}
	t.check("ambiguous service asks to clarify", strings.Contains(ambiguous.text(), "Стрижка мужская"))
}

var bookingIDPattern = regexp.MustCompile(`ID записи: (\d+)`)

func scenarioBookAndCancel(t *T, s *session) {
	booked, err := s.tool("book_appointment", map[string]any{
		"client_phone":   newPhone,
		"client_name":    "Тестовый Клиент",
		"service_name":   "Окрашивание",
		"preferred_date": tomorrow(),
		"preferred_time": "12:00",
		"master_name":    "Ольга",
	})
	if err != nil {
		t.fatalf("book_appointment: %v", err)
		return
	}
	t.check("booking confirmed", strings.Contains(booked.text(), "✅"))
	m := bookingIDPattern.FindStringSubmatch(booked.text())
	if m == nil {
		t.fatalf("no booking id in %q", booked.text())
		return
	}

	bookings, err := s.tool("get_client_bookings", map[string]any{"phone": newPhone})
	if err != nil {
		t.fatalf("get_client_bookings: %v", err)
		return
	}
	t.check("booking visible to client", strings.Contains(bookings.text(), "Окрашивание"))

	id, _ := strconv.Atoi(m[1])
	cancelled, err := s.tool("cancel_booking", map[string]any{"booking_id": id})
	if err != nil {
		t.fatalf("cancel_booking: %v", err)
		return
	}
	t.check("booking cancelled", strings.Contains(cancelled.text(), m[1]))
}

func scenarioErrors(t *T, s *session) {
	invalid, err := s.tool("book_appointment", map[string]any{"client_phone": "123"})
	if err != nil {
		t.fatalf("book_appointment: %v", err)
		return
	}
	t.check("validation failure is a tool error", invalid.IsError && strings.Contains(invalid.text(), "Ошибка валидации"))

	unknown, err := s.tool("drop_database", nil)
	if err != nil {
		t.fatalf("unknown tool: %v", err)
		return
	}
	t.check("unknown tool is a tool error", unknown.IsError && strings.Contains(unknown.text(), "Неизвестный инструмент"))

	r, err := s.call("resources/list", map[string]any{})
	if err != nil {
		t.fatalf("resources/list: %v", err)
		return
	}
	t.check("unknown method is a protocol error", r.Error != nil && r.Error.Code == -32601)
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	baseURL = strings.TrimRight(os.Getenv("MCP_BASE_URL"), "/")
	if baseURL == "" {
		baseURL = "http://localhost:3000"
	}

	scenarios := []scenario{
		{"handshake", scenarioHandshake},
		{"catalogue", scenarioCatalogue},
		{"find-client", scenarioFindClient},
		{"find-time", scenarioFindTime},
		{"book-cancel", scenarioBookAndCancel},
		{"errors", scenarioErrors},
	}

	// Filter by name if argument provided
	filter := ""
	if len(os.Args) > 1 {
		filter = os.Args[1]
	}

	totalPassed := 0
	totalFailed := 0
	scenarioResults := make([]string, 0)

	for _, sc := range scenarios {
		if filter != "" && sc.Name != filter {
			continue
		}

		fmt.Printf("\n========================================\n")
		fmt.Printf("SCENARIO: %s\n", sc.Name)
		fmt.Printf("========================================\n")

		t := &T{name: sc.Name}
		s, err := openSession()
		if err != nil {
			t.fatalf("open session: %v", err)
		} else {
			sc.Fn(t, s)
			s.close()
		}

		totalPassed += t.passed
		totalFailed += t.failed

		status := "✅"
		if t.failed > 0 {
			status = "❌"
		}
		scenarioResults = append(scenarioResults, fmt.Sprintf("  %s %s (%d passed, %d failed)", status, sc.Name, t.passed, t.failed))
	}

	fmt.Printf("\n========================================\n")
	fmt.Printf("SUMMARY\n")
	fmt.Printf("========================================\n")
	for _, line := range scenarioResults {
		fmt.Println(line)
	}
	fmt.Printf("\nTotal: %d passed, %d failed\n", totalPassed, totalFailed)
	if totalFailed > 0 {
		os.Exit(1)
	}
}
