package identity

import (
	"context"
	"net/http"
)

// StaticResolver hands every request the same configured principal. It exists
// for local and dev operation and is selected explicitly by configuration; it
// is not a security boundary.
type StaticResolver struct {
	principal Principal
}

func NewStaticResolver(id, name string) *StaticResolver {
	return &StaticResolver{principal: Principal{ID: id, Name: name, Provider: "static"}}
}

func (r *StaticResolver) Resolve(ctx context.Context, headers http.Header) (*Principal, error) {
	p := r.principal
	return &p, nil
}
