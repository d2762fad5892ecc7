package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"
)

// Recoverer recovers from panics in handlers. A panic inside an upgraded
// websocket handler is only logged, the connection no longer speaks HTTP.
func Recoverer(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				Log(log, r).Error("panic recovered",
					zap.Any("panic", rvr),
					zap.String("route", getRoutePattern(r)),
					zap.Bool("upgrade", isUpgrade(r)),
					zap.ByteString("stack", debug.Stack()),
				)
				if isUpgrade(r) {
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]string{
					"code":    "DASH_INTERNAL",
					"message": "internal server error",
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
