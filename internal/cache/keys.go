package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Key namespaces. Each concern owns a prefix so that invalidation can target
// one concern (and one project) with a single pattern delete.
const (
	traceListNS = "traces:list:"
	sessionNS   = "sessions:"
)

// TraceListKey is the cache key for one page of a project's trace list,
// identified by the hash of its query parameters.
func TraceListKey(projectID, paramsHash string) string {
	return traceListNS + projectID + ":" + paramsHash
}

// TraceListPrefix matches every cached trace-list page for a project.
func TraceListPrefix(projectID string) string {
	return traceListNS + projectID + ":*"
}

// SessionKey is the cache key for a session record.
func SessionKey(sessionID string) string {
	return sessionNS + sessionID
}

// HashParams produces a deterministic, order-independent cache-key suffix
// from a parameter map. Keys are sorted before hashing and nil-valued
// parameters are excluded, so {a:1} and {a:1,b:nil} hash identically. The
// result is a fixed-length lowercase hex string.
func HashParams(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == nil {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		if raw, err := json.Marshal(params[k]); err == nil {
			b.Write(raw)
		} else {
			fmt.Fprintf(&b, "%v", params[k])
		}
		b.WriteByte(';')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
