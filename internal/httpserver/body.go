package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var errMalformedBody = errors.New("malformed request body")

const maxBodyBytes = 2 << 20

// Body shapes. Extra fields are ignored; listed fields must be strings.
var (
	postSchema = jsonschema.MustCompileString("https://microfeed.local/schemas/post.schema.json", `{
	"type": "object",
	"required": ["message"],
	"properties": {
		"message": {"type": "string"}
	}
}`)
	credentialsSchema = jsonschema.MustCompileString("https://microfeed.local/schemas/credentials.schema.json", `{
	"type": "object",
	"required": ["username", "password"],
	"properties": {
		"username": {"type": "string"},
		"password": {"type": "string"}
	}
}`)
)

type postRequest struct {
	Message string
}

type credentialsRequest struct {
	Username string
	Password string
}

func decodePost(w http.ResponseWriter, r *http.Request) (postRequest, error) {
	doc, err := decodeBody(w, r, postSchema, "message")
	if err != nil {
		return postRequest{}, err
	}
	return postRequest{Message: doc["message"].(string)}, nil
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, error) {
	doc, err := decodeBody(w, r, credentialsSchema, "username", "password")
	if err != nil {
		return credentialsRequest{}, err
	}
	return credentialsRequest{
		Username: doc["username"].(string),
		Password: doc["password"].(string),
	}, nil
}

// decodeBody reads the whole body and checks it against schema. Field names
// match exactly, and each of fields may appear only once. Any failure is
// reported as errMalformedBody.
func decodeBody(w http.ResponseWriter, r *http.Request, schema *jsonschema.Schema, fields ...string) (map[string]any, error) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", errMalformedBody, err)
	}

	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	if err := rejectDuplicateFields(b, fields); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return doc.(map[string]any), nil
}

// rejectDuplicateFields walks the top-level object in b. Repeated keys that
// are not in fields are ignored.
func rejectDuplicateFields(b []byte, fields []string) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	if _, err := dec.Token(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(fields))
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return err
		}
		key, _ := tok.(string)
		if !slices.Contains(fields, key) {
			continue
		}
		if seen[key] {
			return fmt.Errorf("duplicate field %q", key)
		}
		seen[key] = true
	}
	return nil
}
