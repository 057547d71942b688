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

// ExecRequest 与服务端 /api/v1/ssh 请求体一致
type ExecRequest struct {
	Hostname             string   `json:"hostname"`
	Port                 int      `json:"port,omitempty"`
	Username             string   `json:"username"`
	Password             string   `json:"password"`
	Commands             []string `json:"commands,omitempty"`
	DeviceFamily         string   `json:"deviceFamily,omitempty"`
	ElevationSecret      string   `json:"elevationSecret,omitempty"`
	ForceLegacyShellMode bool     `json:"forceLegacyShellMode,omitempty"`
}

type EntryView struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type ExecResponse struct {
	SessionID   string          `json:"session_id"`
	Strategy    string          `json:"strategy"`
	Output      []EntryView     `json:"output"`
	DeadlineHit bool            `json:"deadline_hit"`
	Device      json.RawMessage `json:"device,omitempty"`
	ParseError  string          `json:"parse_error,omitempty"`
	Code        string          `json:"code,omitempty"`
	Message     string          `json:"message,omitempty"`
}

// wrap a single line by rune count width
func wrapLineByRune(s string, width int) []string {
	if width <= 0 || len(s) == 0 {
		return []string{s}
	}
	rs := []rune(s)
	out := make([]string, 0, (len(rs)/width)+1)
	for i := 0; i < len(rs); i += width {
		end := i + width
		if end > len(rs) {
			end = len(rs)
		}
		out = append(out, string(rs[i:end]))
	}
	return out
}

// printEntries 按类型前缀打印，每条最多 limit 行
func printEntries(w io.Writer, entries []EntryView, width, limit int) {
	for _, e := range entries {
		prefix := "  "
		switch e.Type {
		case "command":
			prefix = "$ "
		case "error":
			prefix = "! "
		}
		lines := buildWrappedLines(e.Content, width)
		for i, ln := range lines {
			if limit > 0 && i >= limit {
				fmt.Fprintf(w, "%s... (%d lines truncated)\n", prefix, len(lines)-limit)
				break
			}
			fmt.Fprintf(w, "%s%s\n", prefix, ln)
		}
	}
}

// build wrapped lines from raw output
func buildWrappedLines(raw string, width int) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	var out []string
	for _, ln := range strings.Split(raw, "\n") {
		out = append(out, wrapLineByRune(ln, width)...)
	}
	return out
}

func main() {
	server := flag.String("server", "http://localhost:8080", "Server base URL")
	mode := flag.String("mode", "exec", "exec | test | config")
	host := flag.String("host", "", "Device hostname or IP")
	port := flag.Int("port", 0, "Device SSH port (0 = server default)")
	user := flag.String("user", "", "SSH username")
	pass := flag.String("pass", os.Getenv("DEVSESSION_PASSWORD"), "SSH password (defaults to $DEVSESSION_PASSWORD)")
	family := flag.String("family", "", "Device family: switch | router | firewall | linux")
	cmds := flag.String("cmds", "", "Commands separated by ';'")
	secret := flag.String("enable", "", "Optional elevation secret")
	forceShell := flag.Bool("force_shell", false, "Force interactive shell replay")
	timeout := flag.Int("http_timeout", 120, "HTTP client timeout seconds")
	wrapWidth := flag.Int("wrap_width", 120, "Auto wrap width per output line")
	limit := flag.Int("limit", 40, "Max printed lines per entry (0 = unlimited)")
	raw := flag.Bool("json", false, "Print raw JSON response")
	flag.Parse()

	if *host == "" || *user == "" {
		fmt.Fprintln(os.Stderr, "host and user are required")
		flag.Usage()
		os.Exit(2)
	}

	req := ExecRequest{
		Hostname:             *host,
		Port:                 *port,
		Username:             *user,
		Password:             *pass,
		DeviceFamily:         *family,
		ElevationSecret:      *secret,
		ForceLegacyShellMode: *forceShell,
	}
	for _, c := range strings.Split(*cmds, ";") {
		if c = strings.TrimSpace(c); c != "" {
			req.Commands = append(req.Commands, c)
		}
	}

	path := "/api/v1/ssh"
	switch *mode {
	case "exec":
	case "test":
		path = "/api/v1/ssh/test"
	case "config":
		path = "/api/v1/ssh/config"
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(2)
	}

	body, _ := json.Marshal(req)
	client := &http.Client{Timeout: time.Duration(*timeout) * time.Second}
	start := time.Now()
	resp, err := client.Post(strings.TrimRight(*server, "/")+path, "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read response failed: %v\n", err)
		os.Exit(1)
	}

	if *raw {
		var pretty bytes.Buffer
		if json.Indent(&pretty, data, "", "  ") == nil {
			data = pretty.Bytes()
		}
		fmt.Println(string(data))
		return
	}

	var out ExecResponse
	if err := json.Unmarshal(data, &out); err != nil {
		fmt.Fprintf(os.Stderr, "decode response failed (HTTP %d): %v\n", resp.StatusCode, err)
		os.Exit(1)
	}
	if resp.StatusCode >= 400 && len(out.Output) == 0 {
		fmt.Fprintf(os.Stderr, "HTTP %d %s: %s\n", resp.StatusCode, out.Code, out.Message)
		os.Exit(1)
	}

	fmt.Printf("session=%s strategy=%s duration=%s deadline_hit=%v\n",
		out.SessionID, out.Strategy, time.Since(start).Round(time.Millisecond), out.DeadlineHit)
	printEntries(os.Stdout, out.Output, *wrapWidth, *limit)
	if out.ParseError != "" {
		fmt.Printf("parse error: %s\n", out.ParseError)
	}
	if len(out.Device) > 0 && string(out.Device) != "null" {
		var pretty bytes.Buffer
		if json.Indent(&pretty, out.Device, "", "  ") == nil {
			fmt.Println(pretty.String())
		}
	}
}
