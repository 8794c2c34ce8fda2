package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type conversationAPI struct {
	mu        sync.Mutex
	questions []string
	histories []int
	status    int
	body      string
}

func (a *conversationAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	a.mu.Lock()
	a.questions = append(a.questions, req.Question)
	a.histories = append(a.histories, len(req.Messages))
	a.mu.Unlock()

	if a.status != 0 {
		w.WriteHeader(a.status)
		_, _ = w.Write([]byte(a.body))
		return
	}
	fmt.Fprintf(w, "data: {\"content\":\"Answer to \"}\n")
	fmt.Fprintf(w, "data: {\"content\":%q}\n", req.Question)
}

func (a *conversationAPI) sent() ([]string, []int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.questions...), append([]int(nil), a.histories...)
}

func runCLI(t *testing.T, api *conversationAPI, stdin string, args ...string) (string, string, error) {
	t.Helper()

	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(append(args, "--api-url", srv.URL))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestAsk(t *testing.T) {
	api := &conversationAPI{}

	out, _, err := runCLI(t, api, "", "ask", "What", "is", "OLAS?")
	if err != nil {
		t.Fatalf("ask error = %v", err)
	}
	if !strings.Contains(out, "Answer to What is OLAS?") {
		t.Errorf("ask output = %q", out)
	}
	questions, _ := api.sent()
	if len(questions) != 1 || questions[0] != "What is OLAS?" {
		t.Errorf("questions = %v", questions)
	}
}

func TestAskRateLimited(t *testing.T) {
	api := &conversationAPI{status: http.StatusTooManyRequests, body: `{"message":"Sign in to continue"}`}

	_, stderr, err := runCLI(t, api, "", "ask", "hello")
	if err == nil {
		t.Fatal("ask should fail when rate limited")
	}
	if !strings.Contains(stderr, "Sign in to continue") {
		t.Errorf("stderr = %q, want the rate limit message", stderr)
	}
}

func TestAskWithoutAPIURL(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"ask", "hello", "--api-url", ""})
	var stderr bytes.Buffer
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&stderr)

	if err := cmd.Execute(); err == nil {
		t.Error("ask without an API URL should fail")
	}
}

func TestChat(t *testing.T) {
	api := &conversationAPI{}

	out, _, err := runCLI(t, api, "first\n\nsecond\n/new\nthird\n/exit\nignored\n", "chat")
	if err != nil {
		t.Fatalf("chat error = %v", err)
	}

	for _, want := range []string{"Answer to first", "Answer to second", "Answer to third", "Started a new chat"} {
		if !strings.Contains(out, want) {
			t.Errorf("chat output = %q, want to contain %q", out, want)
		}
	}

	questions, histories := api.sent()
	wantQuestions := []string{"first", "second", "third"}
	if strings.Join(questions, ",") != strings.Join(wantQuestions, ",") {
		t.Errorf("questions = %v, want %v", questions, wantQuestions)
	}
	// Each send carries the previous turns plus the new question, and /new drops them.
	wantHistories := []int{1, 3, 1}
	if fmt.Sprint(histories) != fmt.Sprint(wantHistories) {
		t.Errorf("history lengths = %v, want %v", histories, wantHistories)
	}
}

func TestChatKeepsGoingAfterFailure(t *testing.T) {
	api := &conversationAPI{status: http.StatusInternalServerError, body: "boom"}

	_, stderr, err := runCLI(t, api, "one\ntwo\n", "chat")
	if err != nil {
		t.Fatalf("chat error = %v", err)
	}
	if strings.Count(stderr, "unexpected status code: 500") != 2 {
		t.Errorf("stderr = %q, want two failures", stderr)
	}
}
