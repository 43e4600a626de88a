package channels

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/smallnest/hookrelay/types"
)

func request(tool, input string) *types.PermissionRequest {
	req := types.NewPermissionRequest(tool, json.RawMessage(input), "devbox")
	req.RequestID = "abc123"
	return req
}

func TestRenderPromptBashEscapesHTML(t *testing.T) {
	text := renderPrompt(markupHTML, request("Bash", `{"command":"echo <hi> && rm -rf /tmp/x"}`))

	for _, want := range []string{
		"🔐 <b>Permission Request</b> <code>[abc123]</code>",
		"<b>Host:</b> <code>devbox</code>",
		"<b>Tool:</b> <code>Bash</code>",
		"<pre>echo &lt;hi&gt; &amp;&amp; rm -rf /tmp/x</pre>",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in:\n%s", want, text)
		}
	}
}

func TestRenderPromptEditTruncates(t *testing.T) {
	long := strings.Repeat("é", 250)
	input, _ := json.Marshal(map[string]string{
		"file_path":  "/src/main.go",
		"old_string": long,
		"new_string": "short",
	})
	text := renderPrompt(markupDiscord, request("Edit", string(input)))

	if !strings.Contains(text, "**File:** `/src/main.go`") {
		t.Fatalf("file path missing:\n%s", text)
	}
	if !strings.Contains(text, strings.Repeat("é", 200)+"...") {
		t.Fatalf("old string should be truncated to 200 runes:\n%s", text)
	}
	if strings.Contains(text, strings.Repeat("é", 201)) {
		t.Fatalf("old string was not truncated")
	}
	if !strings.Contains(text, "**New:**\n```\nshort\n```") {
		t.Fatalf("new string missing:\n%s", text)
	}
}

func TestRenderPromptWriteShowsOnlyFile(t *testing.T) {
	text := renderPrompt(markupSlack, request("Write", `{"file_path":"/a.txt","content":"secret body"}`))
	if !strings.Contains(text, "*File:* `/a.txt`") {
		t.Fatalf("file path missing:\n%s", text)
	}
	if strings.Contains(text, "secret body") {
		t.Fatalf("write content should not be shown:\n%s", text)
	}
}

func TestRenderPromptOtherToolShowsJSON(t *testing.T) {
	text := renderPrompt(markupDiscord, request("WebFetch", `{"url":"https://example.com","prompt":"x"}`))
	if !strings.Contains(text, "**Input:**") || !strings.Contains(text, `"url": "https://example.com"`) {
		t.Fatalf("expected pretty JSON input:\n%s", text)
	}

	big := `{"data":"` + strings.Repeat("x", 1000) + `"}`
	text = renderPrompt(markupDiscord, request("WebFetch", big))
	if strings.Contains(text, strings.Repeat("x", 600)) {
		t.Fatalf("input JSON should be truncated")
	}
}

func TestRenderAutoApproved(t *testing.T) {
	text := renderAutoApproved(markupSlack, request("Bash", `{"command":"go test ./..."}`))
	for _, want := range []string{"Auto-Approved", "(in always-allow list)", "go test ./..."} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in:\n%s", want, text)
		}
	}
}

func TestRenderNotice(t *testing.T) {
	text := renderNotice(markupSlack, &Notice{
		Icon:   "✅",
		Title:  "Job Completed",
		Fields: []Field{{Name: "Host", Value: "devbox"}, {Name: "Project", Value: "a<b"}},
		Body:   "done",
	})
	want := "✅ *Job Completed*\n\n*Host:* devbox\n*Project:* a&lt;b\n\ndone"
	if text != want {
		t.Fatalf("unexpected notice:\n%q\nwant\n%q", text, want)
	}
}

func TestRenderStatus(t *testing.T) {
	cases := map[promptStatus]string{
		statusApproved: "✅ Approved",
		statusDenied:   "❌ Denied",
		statusTimeout:  "⏱️ Timeout - Denied",
		statusError:    "❌ Error",
	}
	for status, want := range cases {
		if got := renderStatus(markupHTML, status, "Bash"); !strings.Contains(got, want) {
			t.Fatalf("status %d: expected %q in %q", status, want, got)
		}
	}
	if got := renderStatus(markupHTML, statusAlwaysAllowed, "Bash"); !strings.Contains(got, "<code>Bash</code> added to list") {
		t.Fatalf("always allowed status should name the tool: %q", got)
	}
}

func TestReplyHintContainsAllKeywords(t *testing.T) {
	hint := renderReplyHint(markupDiscord, "abc123")
	for _, kw := range []string{"ALLOW abc123", "DENY abc123", "ALWAYS abc123"} {
		if !strings.Contains(hint, kw) {
			t.Fatalf("expected %q in hint %q", kw, hint)
		}
	}
}
