package inference

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStringify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"unchanged", `{"label":"car","confidence":0.92}`, `{"label":"car","confidence":0.92}`},
		{"whitespace", "{ \"a\" : [ true , null , { } , [ ] ] }\n", `{"a":[true,null,{},[]]}`},
		{"trailing zero", `{"confidence":0.920}`, `{"confidence":0.92}`},
		{"exponent integer", `{"n":1e2}`, `{"n":100}`},
		{"duplicate keys", `{"a":1,"b":2,"a":3}`, `{"a":3,"b":2}`},
		{"duplicate after number", `{"n":1e2,"a":1,"a":2}`, `{"n":100,"a":2}`},
		{"index keys first", `{"b":1,"2":2,"1":3,"01":4}`, `{"1":3,"2":2,"b":1,"01":4}`},
		{"unicode escape", `{"s":"\u00e7"}`, `{"s":"ç"}`},
		{"html literal", `{"s":"<a&b>"}`, `{"s":"<a&b>"}`},
		{"line separator", `{"s":"a\u2028b"}`, "{\"s\":\"a\u2028b\"}"},
		{"control chars", `{"s":"\u0009\u000a\u0001\"\\\/"}`, `{"s":"\t\n\u0001\"\\/"}`},
		{"large", `[1e21,100000000000000000000]`, `[1e+21,100000000000000000000]`},
		{"small", `[1e-7,1.5e-7,0.000001,5e-324]`, `[1e-7,1.5e-7,0.000001,5e-324]`},
		{"negative zero", `[-0,-0.0,-1.50]`, `[0,0,-1.5]`},
		{"overflow", `{"n":1e999}`, `{"n":null}`},
		{"top-level string", `"x"`, `"x"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := stringify([]byte(tt.in))
			if err != nil {
				t.Fatalf("stringify(%s): %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("stringify(%s) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestStringifyRejectsInvalid(t *testing.T) {
	for _, in := range []string{"", "  ", "{", `{"a":1} x`, "<html>busy</html>", `{"a":01}`} {
		if _, err := stringify([]byte(in)); !errors.Is(err, ErrInvalidJSON) {
			t.Errorf("stringify(%q) err = %v, want ErrInvalidJSON", in, err)
		}
	}
}

func TestPredictReserializesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"label":"gar\u00e7on","confidence":0.920,"label":"caf\u00e9","boxes":[1e2]}`)
	}))
	defer srv.Close()

	c, _ := NewClient(WithBaseURL(srv.URL))
	got, err := c.Predict(context.Background(), writeStill(t, []byte{0xFF, 0xD8}))
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if want := `{"label":"café","confidence":0.92,"boxes":[100]}`; got != want {
		t.Fatalf("Predict = %s, want %s", got, want)
	}
}
