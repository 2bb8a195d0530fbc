package main

import (
	"fmt"
	"strings"
)

// location is a parsed s3://bucket/key URL.
type location struct {
	Bucket string
	Key    string
}

func parseLocation(raw string) (location, error) {
	rest, ok := strings.CutPrefix(raw, "s3://")
	if !ok {
		return location{}, fmt.Errorf("remote location %q must start with s3://", raw)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return location{}, fmt.Errorf("remote location %q has no bucket", raw)
	}
	return location{Bucket: bucket, Key: key}, nil
}

// IsPrefix reports whether the location names a key prefix rather than an object.
func (l location) IsPrefix() bool {
	return l.Key == "" || strings.HasSuffix(l.Key, "/")
}

func (l location) String() string {
	return "s3://" + l.Bucket + "/" + l.Key
}
