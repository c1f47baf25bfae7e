package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainTable = "chartflow/table/v1"
	DomainScene = "chartflow/scene/v1"
	DomainEvent = "chartflow/event/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TableHash computes a content hash over a table's schema and rows, in row
// order. Two runs of the same pipeline over the same input and parameter
// snapshot must produce the same hash.
func TableHash(t Table) (string, error) {
	fields := make(List, len(t.Fields))
	for i, f := range t.Fields {
		fields[i] = String(f)
	}
	obj := Object{
		"fields": fields,
		"rows":   t.Objects(),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("TableHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTable, canonical), nil
}

// SceneHash computes a content hash over an already-canonical value
// (typically a composed scene converted with ToValue).
func SceneHash(v Value) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("SceneHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainScene, canonical), nil
}

// EventID computes the content-addressed ID of a chart event.
func EventID(chart string, seq int64, kind, name string, payload Value) (string, error) {
	if payload == nil {
		payload = Null{}
	}
	obj := Object{
		"chart":   String(chart),
		"seq":     Number(seq),
		"kind":    String(kind),
		"name":    String(name),
		"payload": payload,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// MustTableHash is like TableHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustTableHash(t Table) string {
	h, err := TableHash(t)
	if err != nil {
		panic(err)
	}
	return h
}
