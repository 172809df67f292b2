package middleware

import (
	"context"
	"net/http"

	"github.com/rpattn/calql/internal/repository"
	"github.com/rpattn/calql/internal/userloader"
)

type ctxKey string

const userLoaderKey ctxKey = "userLoader"

// DataLoaderMiddleware attaches a per-request user loader to the context
func DataLoaderMiddleware(repo repository.UserRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loader := userloader.NewUserLoader(repo)

			ctx := context.WithValue(r.Context(), userLoaderKey, loader)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserLoaderFromContext retrieves the user loader from context
func UserLoaderFromContext(ctx context.Context) *userloader.UserLoader {
	if l, ok := ctx.Value(userLoaderKey).(*userloader.UserLoader); ok {
		return l
	}
	return nil
}
