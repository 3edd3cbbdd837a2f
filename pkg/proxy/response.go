package proxy

import (
	"encoding/json"
	"net/http"

	"gopkg.in/yaml.v3"

	"github.com/secretsgate/bws-rest-proxy/pkg/upstream"
)

// ErrorMessage is the JSON error body returned for every failure.
type ErrorMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// StructuredSecret is the response shape for a single secret. The value is
// decoded as YAML when possible so structured secrets render as JSON
// objects instead of embedded strings.
type StructuredSecret struct {
	Object         string `json:"object"`
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	ProjectID      string `json:"project_id,omitempty"`

	Key   string `json:"key"`
	Value any    `json:"value"`
	Note  string `json:"note"`

	CreationDate string `json:"creation_date"`
	RevisionDate string `json:"revision_date"`
}

// SecretIdentifierView is one entry of a list response.
type SecretIdentifierView struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Key            string `json:"key"`
}

// SecretList is the response shape for a listing.
type SecretList struct {
	Object string                 `json:"object"`
	Data   []SecretIdentifierView `json:"data"`
}

func structuredSecret(s *upstream.Secret) StructuredSecret {
	return StructuredSecret{
		Object:         "secret",
		ID:             s.ID,
		OrganizationID: s.OrganizationID,
		ProjectID:      s.ProjectID,
		Key:            s.Key,
		Value:          structuredValue(s.Value),
		Note:           s.Note,
		CreationDate:   s.CreationDate,
		RevisionDate:   s.RevisionDate,
	}
}

func secretList(identifiers []upstream.SecretIdentifier) SecretList {
	data := make([]SecretIdentifierView, 0, len(identifiers))
	for _, id := range identifiers {
		data = append(data, SecretIdentifierView{
			ID:             id.ID,
			OrganizationID: id.OrganizationID,
			Key:            id.Key,
		})
	}
	return SecretList{Object: "list", Data: data}
}

// structuredValue decodes a secret value as YAML, falling back to the raw
// string. YAML is a superset of JSON, so JSON-valued secrets round-trip
// into structured responses as well.
func structuredValue(value string) any {
	var decoded any
	if err := yaml.Unmarshal([]byte(value), &decoded); err != nil {
		return value
	}
	if decoded == nil {
		return value
	}
	// Reject shapes that cannot re-encode as JSON (e.g. non-string map keys).
	if _, err := json.Marshal(decoded); err != nil {
		return value
	}
	return decoded
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorMessage{Code: status, Message: message})
}

// statusForError maps the upstream taxonomy onto HTTP statuses.
func statusForError(err error) (int, string) {
	switch upstream.ClassOf(err) {
	case upstream.ErrorClassAuth:
		return http.StatusUnauthorized, "Unauthorized"
	case upstream.ErrorClassNotFound:
		return http.StatusNotFound, "Not Found"
	case upstream.ErrorClassTimeout:
		return http.StatusGatewayTimeout, "Upstream Timeout"
	case upstream.ErrorClassTransient:
		return http.StatusBadGateway, "Bad Gateway"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}
