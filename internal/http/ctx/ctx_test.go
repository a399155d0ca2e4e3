package ctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"

	dbpkg "energyinsight/internal/db"
)

func TestUserValues(t *testing.T) {
	var rc fasthttp.RequestCtx

	_, ok := UserFromCtx(&rc)
	assert.False(t, ok)
	assert.Empty(t, RequestIDFromCtx(&rc))

	SetUser(&rc, &dbpkg.User{ID: 5, Username: "demo"})
	SetRequestID(&rc, "req-1")

	u, ok := UserFromCtx(&rc)
	assert.True(t, ok)
	assert.Equal(t, uint(5), u.ID)

	assert.Equal(t, "req-1", RequestIDFromCtx(&rc))

	SetUser(&rc, nil)
	_, ok = UserFromCtx(&rc)
	assert.False(t, ok)
}
