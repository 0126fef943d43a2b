package middleware

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestIdempotencyValidator(t *testing.T) {
	var gotUser, gotKey string
	lookup := func(_ context.Context, userID, key string, _ time.Time) (bool, error) {
		gotUser, gotKey = userID, key
		return key == "done-1", nil
	}
	r := newEngine(RequestID(), Auth(tokenAuth{"good": "user-1"}, AuthOptions{}),
		IdempotencyValidator(IdempotencyOptions{MaxLen: 16}, lookup))
	handler := func(c *gin.Context) {
		key, _ := GetIdempotencyKey(c)
		c.JSON(http.StatusOK, gin.H{"key": key, "replay": IsReplay(c), "bypass": c.GetBool(ctxKeyRateBypass)})
	}
	r.POST("/chat", handler)
	r.GET("/chat", handler)

	auth := map[string]string{"Authorization": "Bearer good"}
	with := func(key string) map[string]string {
		return map[string]string{"Authorization": "Bearer good", HeaderIdempotencyKey: key}
	}

	if w := do(r, http.MethodPost, "/chat", auth, nil); !strings.Contains(w.Body.String(), `"key":""`) {
		t.Fatalf("no header: %s", w.Body.String())
	}
	if w := do(r, http.MethodPost, "/chat", with("has space"), nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad pattern: %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/chat", with(strings.Repeat("a", 17)), nil); w.Code != http.StatusBadRequest {
		t.Fatalf("too long: %d", w.Code)
	}

	w := do(r, http.MethodPost, "/chat", with("fresh-1"), nil)
	if !strings.Contains(w.Body.String(), `"replay":false`) || !strings.Contains(w.Body.String(), `"key":"fresh-1"`) {
		t.Fatalf("fresh key: %s", w.Body.String())
	}
	if gotUser != "user-1" || gotKey != "fresh-1" {
		t.Fatalf("lookup saw %q/%q", gotUser, gotKey)
	}

	w = do(r, http.MethodPost, "/chat", with("done-1"), nil)
	if !strings.Contains(w.Body.String(), `"replay":true`) || !strings.Contains(w.Body.String(), `"bypass":true`) {
		t.Fatalf("replay: %s", w.Body.String())
	}

	// only POST is considered
	w = do(r, http.MethodGet, "/chat", with("done-1"), nil)
	if !strings.Contains(w.Body.String(), `"key":""`) {
		t.Fatalf("GET: %s", w.Body.String())
	}
}
