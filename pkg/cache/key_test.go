package cache

import (
	"net/url"
	"testing"
)

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "endpoint only",
			key:  Key{Endpoint: "/paper/search/"},
			want: "rs:paper/search",
		},
		{
			name: "service and endpoint",
			key:  Key{Service: "semanticscholar", Endpoint: "/paper/search"},
			want: "rs:semanticscholar:paper/search",
		},
		{
			name: "query params sorted",
			key: Key{
				Service:  "semanticscholar",
				Endpoint: "/paper/search",
				Query: url.Values{
					"query":  []string{"bm25"},
					"limit":  []string{"10"},
					"offset": []string{"0"},
				},
			},
			want: "rs:semanticscholar:paper/search:limit=10:offset=0:query=bm25",
		},
		{
			name: "multi-valued param",
			key: Key{
				Endpoint: "/x",
				Query:    url.Values{"f": []string{"a", "b"}},
			},
			want: "rs:x:f=a,b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("Key.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKey_Deterministic(t *testing.T) {
	key := Key{
		Service:  "semanticscholar",
		Endpoint: "/paper/search",
		Query: url.Values{
			"a": []string{"1"},
			"b": []string{"2"},
			"c": []string{"3"},
		},
	}

	first := key.String()
	for i := 0; i < 100; i++ {
		if got := key.String(); got != first {
			t.Fatalf("Key.String() not deterministic: %q != %q", got, first)
		}
	}
}
