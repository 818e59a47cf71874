package testutil

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// ScholarSearchPath is the paper search endpoint path below the mock URL.
const ScholarSearchPath = "/paper/search"

// MockScholar serves a paper search endpoint over a synthetic corpus of
// Total papers per query. Paper ids are "<query>-<index>".
type MockScholar struct {
	*MockServer
	Total int
}

// NewMockScholar creates a mock search server with total papers per query.
func NewMockScholar(total int) *MockScholar {
	m := &MockScholar{MockServer: NewMockServer(), Total: total}
	m.SetHandler(ScholarSearchPath, m.search)
	return m
}

func (m *MockScholar) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("query")
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit < 1 || limit > 100 {
		writeResponse(w, NewBadRequestResponse("limit must be between 1 and 100"))
		return
	}
	fields := strings.Split(q.Get("fields"), ",")

	end := min(offset+limit, m.Total)
	data := make([]map[string]any, 0, max(end-offset, 0))
	for i := offset; i < end; i++ {
		paper := map[string]any{"paperId": fmt.Sprintf("%s-%d", query, i)}
		for _, f := range fields {
			switch f {
			case "":
			case "year":
				paper[f] = 2000 + i
			default:
				paper[f] = fmt.Sprintf("%s %s %d", f, query, i)
			}
		}
		data = append(data, paper)
	}

	body := map[string]any{
		"total":  m.Total,
		"offset": offset,
		"data":   data,
	}
	if end < m.Total {
		body["next"] = end
	}
	writeJSON(w, body)
}
