package auth

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/gin-gonic/gin"
)

// contextKeyStaleCookie marks requests that sent a session cookie which no
// longer matches a live session.
const contextKeyStaleCookie = "auth_stale_session_cookie"

// sessionResponseWriter wraps http.ResponseWriter to intercept WriteHeader
// and write session cookies before headers are sent.
type sessionResponseWriter struct {
	gin.ResponseWriter
	sm            *SessionManager
	request       *http.Request
	wroteHeader   bool
	cookieWritten bool
	commitErr     error
}

func (w *sessionResponseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.writeSessionCookie()
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionResponseWriter) WriteHeaderNow() {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.writeSessionCookie()
	}
	w.ResponseWriter.WriteHeaderNow()
}

func (w *sessionResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.writeSessionCookie()
	}
	return w.ResponseWriter.Write(b)
}

func (w *sessionResponseWriter) WriteString(s string) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.writeSessionCookie()
	}
	return w.ResponseWriter.WriteString(s)
}

func (w *sessionResponseWriter) writeSessionCookie() {
	if w.cookieWritten {
		return
	}
	w.cookieWritten = true

	ctx := w.request.Context()
	switch w.sm.Status(ctx) {
	case scs.Modified:
		token, expiry, err := w.sm.Commit(ctx)
		if err != nil {
			w.commitErr = err
			return
		}
		w.sm.WriteSessionCookie(ctx, w.ResponseWriter, token, expiry)
	case scs.Destroyed:
		w.sm.WriteSessionCookie(ctx, w.ResponseWriter, "", time.Time{})
	}
}

// commit persists the session ahead of the response. Later writes do not
// commit again, so the caller owns any error it returns.
func (w *sessionResponseWriter) commit() error {
	w.writeSessionCookie()
	err := w.commitErr
	w.commitErr = nil
	return err
}

func (w *sessionResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return w.ResponseWriter.Hijack()
}

// CommitSession saves the session and sets its cookie before the handler
// writes a response, so a store failure can still be answered with 503.
// Changes made to the session afterwards are not saved.
func (sm *SessionManager) CommitSession(c *gin.Context) error {
	if srw, ok := c.Writer.(*sessionResponseWriter); ok {
		if err := srw.commit(); err != nil {
			return newFailure(ReasonStoreUnavailable, err)
		}
		return nil
	}

	ctx := c.Request.Context()
	token, expiry, err := sm.Commit(ctx)
	if err != nil {
		return newFailure(ReasonStoreUnavailable, err)
	}
	sm.WriteSessionCookie(ctx, c.Writer, token, expiry)
	return nil
}

// SessionLoadSave returns a Gin middleware that loads the session before the
// handlers run and commits it before the first byte of the response.
func (sm *SessionManager) SessionLoadSave() gin.HandlerFunc {
	return func(c *gin.Context) {
		var token string
		cookie, err := c.Request.Cookie(sm.Cookie.Name)
		if err == nil {
			token = cookie.Value
		}

		ctx, err := sm.Load(c.Request.Context(), token)
		if err != nil {
			c.Error(newFailure(ReasonStoreUnavailable, err))
			respondStoreUnavailable(c)
			return
		}
		c.Request = c.Request.WithContext(ctx)

		// scs starts a fresh session when the store has no record for the token
		if token != "" && sm.Token(ctx) == "" {
			c.Set(contextKeyStaleCookie, true)
		}

		srw := &sessionResponseWriter{
			ResponseWriter: c.Writer,
			sm:             sm,
			request:        c.Request,
		}
		c.Writer = srw

		c.Next()

		// Ensure session cookie is written even if no response body
		if !srw.wroteHeader {
			srw.writeSessionCookie()
		}
		if srw.commitErr != nil {
			c.Error(newFailure(ReasonStoreUnavailable, srw.commitErr))
		}
	}
}
