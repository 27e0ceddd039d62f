package results

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/testforge/portalsuite/internal/domain"
)

const (
	blobContainerID = "data-container"
	blobAttr        = "data-jsonblob"
)

var errNoBlob = errors.New("no data-jsonblob container found")

type jsonReport struct {
	Title       string          `json:"title"`
	Environment json.RawMessage `json:"environment"`
	Tests       json.RawMessage `json:"tests"`
}

type jsonAttempt struct {
	TestID   string      `json:"testId"`
	Result   string      `json:"result"`
	Duration string      `json:"duration"`
	Log      string      `json:"log"`
	Extras   []jsonExtra `json:"extras"`
}

type jsonExtra struct {
	Name       string `json:"name"`
	FormatType string `json:"format_type"`
	Content    string `json:"content"`
}

// parseJSON reads the test blob. baseDir anchors relative extra paths.
func (p *Parser) parseJSON(data []byte, baseDir string) (*Result, error) {
	var report jsonReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decoding json results: %w", err)
	}
	if len(report.Tests) == 0 {
		return nil, errors.New("json results have no tests object")
	}

	ids, raw, err := orderedObject(report.Tests)
	if err != nil {
		return nil, fmt.Errorf("decoding tests: %w", err)
	}

	res := &Result{Title: report.Title}
	if len(report.Environment) > 0 {
		var env map[string]any
		if err := json.Unmarshal(report.Environment, &env); err == nil {
			res.Environment = envEntries(env)
		}
	}

	idx := newGroupIndex()
	for _, id := range ids {
		var attempts []jsonAttempt
		if err := json.Unmarshal(raw[id], &attempts); err != nil {
			return nil, fmt.Errorf("decoding attempts of %s: %w", id, err)
		}
		if len(attempts) == 0 {
			continue
		}
		// The final attempt is authoritative
		last := attempts[len(attempts)-1]

		group, name := splitTestID(id)
		d, _ := ParseDuration(last.Duration)
		rec := domain.TestRecord{
			Group:        group,
			Name:         name,
			Outcome:      domain.ParseOutcome(last.Result),
			Duration:     d,
			DurationText: last.Duration,
			Detail:       last.Log,
			Attempts:     len(attempts),
		}

		for _, extra := range last.Extras {
			if extra.FormatType != "image" || extra.Content == "" {
				continue
			}
			if strings.HasPrefix(extra.Content, "data:") {
				rec.ScreenshotURI = extra.Content
				break
			}
			p.attach(&rec, resolveExtraPath(baseDir, extra.Content), &res.Embedded)
			if rec.ScreenshotURI != "" {
				break
			}
		}

		idx.add(rec)
	}

	res.Groups = idx.groups
	res.Summary = domain.Summarize(idx.records(), 0)
	return res, nil
}

// extractBlob pulls the JSON blob out of a report page
func extractBlob(page []byte) ([]byte, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	var found []byte
	var visit func(n *html.Node) bool
	visit = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "div" {
			var id, blob string
			var hasBlob bool
			for _, a := range n.Attr {
				switch a.Key {
				case "id":
					id = a.Val
				case blobAttr:
					blob, hasBlob = a.Val, true
				}
			}
			if id == blobContainerID && hasBlob && strings.TrimSpace(blob) != "" {
				found = []byte(blob)
				return true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if visit(c) {
				return true
			}
		}
		return false
	}

	if !visit(doc) {
		return nil, errNoBlob
	}
	return found, nil
}

// orderedObject decodes a JSON object keeping its key order
func orderedObject(data json.RawMessage) ([]string, map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, errors.New("expected an object")
	}

	var keys []string
	values := make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, errors.New("expected an object key")
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, nil, err
		}
		if _, dup := values[key]; !dup {
			keys = append(keys, key)
		}
		values[key] = v
	}
	return keys, values, nil
}

// splitTestID splits "path/file.py::Class::test" at its last separator
func splitTestID(id string) (group, name string) {
	if i := strings.LastIndex(id, "::"); i >= 0 {
		return id[:i], id[i+2:]
	}
	return "", id
}

// resolveExtraPath anchors a recorded artifact path at baseDir. Paths written
// on Windows use backslashes.
func resolveExtraPath(baseDir, content string) string {
	p := filepath.FromSlash(strings.ReplaceAll(content, `\`, "/"))
	if filepath.IsAbs(p) {
		return p
	}
	abs, err := filepath.Abs(filepath.Join(baseDir, p))
	if err != nil {
		return filepath.Join(baseDir, p)
	}
	return abs
}

func envEntries(m map[string]any) []EnvEntry {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]EnvEntry, 0, len(keys))
	for _, k := range keys {
		switch v := m[k].(type) {
		case map[string]any:
			out = append(out, EnvEntry{Key: k, Items: envEntries(v)})
		case nil:
			out = append(out, EnvEntry{Key: k})
		case string:
			out = append(out, EnvEntry{Key: k, Value: v})
		default:
			b, _ := json.Marshal(v)
			out = append(out, EnvEntry{Key: k, Value: string(b)})
		}
	}
	return out
}

var (
	clockDuration = regexp.MustCompile(`^(\d+):(\d{1,2}):(\d{1,2})(?:\.(\d+))?$`)
	msDuration    = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*ms$`)
)

// ParseDuration accepts "HH:MM:SS[.fff]", "N ms", plain seconds and Go
// duration strings.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if m := clockDuration.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		sec, _ := strconv.Atoi(m[3])
		d := time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute + time.Duration(sec)*time.Second
		if m[4] != "" {
			frac, _ := strconv.ParseFloat("0."+m[4], 64)
			d += time.Duration(frac * float64(time.Second))
		}
		return d, nil
	}
	if m := msDuration.FindStringSubmatch(s); m != nil {
		f, _ := strconv.ParseFloat(m[1], 64)
		return time.Duration(f * float64(time.Millisecond)), nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("unrecognized duration %q", s)
	}
	return d, nil
}
