package inspect

import (
	"encoding/json"
	"time"
)

// harLog is a minimal HAR 1.2 document (http://www.softwareishard.com/blog/har-12-spec/)
// covering only the fields the inspector actually populates.
type harLog struct {
	Log harLogBody `json:"log"`
}

type harLogBody struct {
	Version string      `json:"version"`
	Creator harCreator  `json:"creator"`
	Entries []harEntry  `json:"entries"`
}

type harCreator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type harEntry struct {
	StartedDateTime string      `json:"startedDateTime"`
	Time            float64     `json:"time"`
	Request         harRequest  `json:"request"`
	Response        harResponse `json:"response"`
	Timings         harTimings  `json:"timings"`
}

type harRequest struct {
	Method      string      `json:"method"`
	URL         string      `json:"url"`
	HTTPVersion string      `json:"httpVersion"`
	Headers     []harHeader `json:"headers"`
}

type harResponse struct {
	Status      int         `json:"status"`
	HTTPVersion string      `json:"httpVersion"`
	Headers     []harHeader `json:"headers"`
	Content     harContent  `json:"content"`
}

type harContent struct {
	Size     int    `json:"size"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

type harTimings struct {
	Wait    float64 `json:"wait"`
	Receive float64 `json:"receive"`
}

type harHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ExportHAR renders the currently-buffered transactions as a HAR 1.2 log.
func (i *Inspector) ExportHAR() ([]byte, error) {
	txs := i.List()
	entries := make([]harEntry, 0, len(txs))

	for _, tx := range txs {
		total := tx.EndedAt.Sub(tx.StartedAt)
		entries = append(entries, harEntry{
			StartedDateTime: tx.StartedAt.Format(time.RFC3339Nano),
			Time:            float64(total.Milliseconds()),
			Request: harRequest{
				Method:      tx.RequestMethod,
				URL:         tx.RequestURL,
				HTTPVersion: "HTTP/1.1",
				Headers:     toHARHeaders(tx.RequestHeaders),
			},
			Response: harResponse{
				Status:      tx.ResponseStatus,
				HTTPVersion: "HTTP/1.1",
				Headers:     toHARHeaders(tx.ResponseHeaders),
				Content: harContent{
					Size:     len(tx.ResponseSnippet),
					MimeType: "text/event-stream",
					Text:     tx.ResponseSnippet,
				},
			},
			Timings: harTimings{
				Wait:    float64(tx.TTFB.Milliseconds()),
				Receive: float64((total - tx.TTFB).Milliseconds()),
			},
		})
	}

	doc := harLog{Log: harLogBody{
		Version: "1.2",
		Creator: harCreator{Name: "multiai-gateway", Version: "1"},
		Entries: entries,
	}}
	return json.Marshal(doc)
}

func toHARHeaders(h map[string][]string) []harHeader {
	out := make([]harHeader, 0, len(h))
	for name, values := range h {
		for _, v := range values {
			out = append(out, harHeader{Name: name, Value: v})
		}
	}
	return out
}
