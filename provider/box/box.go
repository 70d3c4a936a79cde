// Package box implements the Box.com provider, ported from
// src/CloudProvider/Box.cpp: JSON metadata over Box's v2.0 REST API,
// offset/limit pagination, and a fixed-boundary multipart upload.
package box

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	cloudstorage "github.com/cloudcore/cloudcore"
	"github.com/cloudcore/cloudcore/auth"
	"github.com/cloudcore/cloudcore/httpapi"
	"github.com/cloudcore/cloudcore/pkg/log"
	"github.com/cloudcore/cloudcore/provider"
	"github.com/cloudcore/cloudcore/request"
)

// Endpoint is Box's API host; upload traffic goes to a separate host.
const Endpoint = "https://api.box.com"

const uploadEndpoint = "https://upload.box.com/api/2.0/files/content"

// multipartBoundary is fixed rather than random, matching Box.cpp's literal
// "Thnlg1ecwyUJHyhYYGrQ" — there is no CSRF exposure in a multipart
// boundary, so the original's hardcoded value is kept rather than invented
// randomness that would diverge from the ported semantics for no benefit.
const multipartBoundary = "Thnlg1ecwyUJHyhYYGrQ"

// AuthConfig returns the auth.Config for Box's OAuth dance, client
// credentials included: Box.cpp's Box::Auth::Auth hardcodes a public
// client_id/client_secret pair for the desktop-app flow.
func AuthConfig(redirectURI string) auth.Config {
	return auth.Config{
		ClientID:         "zmiv9tv13hunxhyjk16zqv8dmdw0d773",
		ClientSecret:     "IZ0T8WsUpJin7Qt3rHMf7qDAIFAkYZ0R",
		RedirectURI:      redirectURI,
		AuthorizationURL: "https://account.box.com/api/oauth2/authorize",
		TokenURL:         Endpoint + "/oauth2/token",
		ParseTokenResponse: func(body []byte) (*cloudstorage.Token, error) {
			var payload struct {
				AccessToken  string `json:"access_token"`
				RefreshToken string `json:"refresh_token"`
			}
			if err := json.Unmarshal(body, &payload); err != nil {
				return nil, cloudstorage.Errorf(cloudstorage.CodeFailure, "parse box token response: %v", err)
			}
			// Box never reports a trustworthy lifetime; every caller treats
			// the access token as possibly-expired and relies on 401+refresh.
			return &cloudstorage.Token{AccessToken: payload.AccessToken, RefreshToken: payload.RefreshToken, ExpiresIn: -1}, nil
		},
	}
}

// New builds a Provider for Box.
func New(a *auth.Auth, httpFactory httpapi.Factory, loop request.Poster, pool request.Submitter, logger log.Logger) *provider.Provider {
	return provider.New("box", Endpoint, hooks(), a, httpFactory, loop, pool, logger)
}

func hooks() provider.Hooks {
	return provider.Hooks{
		RootDirectory: func() cloudstorage.Item {
			return cloudstorage.Item{ID: "0", Filename: "/", Type: cloudstorage.Directory}
		},

		GeneralDataRequest: func() (string, string) {
			return http.MethodGet, Endpoint + "/2.0/users/me"
		},
		GeneralDataResponse: func(body []byte) (cloudstorage.GeneralData, error) {
			var v struct {
				Login       string `json:"login"`
				SpaceAmount int64  `json:"space_amount"`
				SpaceUsed   int64  `json:"space_used"`
			}
			if err := json.Unmarshal(body, &v); err != nil {
				return cloudstorage.GeneralData{}, cloudstorage.Errorf(cloudstorage.CodeFailure, "parse box general data: %v", err)
			}
			return cloudstorage.GeneralData{Username: v.Login, SpaceUsed: v.SpaceUsed, SpaceTotal: v.SpaceAmount}, nil
		},

		GetItemDataRequest: func(id string) (string, string) {
			return http.MethodGet, Endpoint + "/2.0/files/" + id
		},
		GetItemDataFallbackRequest: func(id string) (string, string, bool) {
			return http.MethodGet, Endpoint + "/2.0/folders/" + id, true
		},
		GetItemDataResponse: func(body []byte) (cloudstorage.Item, error) {
			return parseItem(body)
		},

		ListDirectoryRequest: func(dir cloudstorage.Item, pageToken string) (string, string, map[string]string) {
			query := map[string]string{"fields": "name,id,size,modified_at"}
			if pageToken != "" {
				query["offset"] = pageToken
			}
			return http.MethodGet, Endpoint + "/2.0/folders/" + dir.ID + "/items/", query
		},
		ListDirectoryResponse: func(body []byte) ([]cloudstorage.Item, string, error) {
			var payload struct {
				Entries    []json.RawMessage `json:"entries"`
				Offset     int                `json:"offset"`
				Limit      int                `json:"limit"`
				TotalCount int                `json:"total_count"`
			}
			if err := json.Unmarshal(body, &payload); err != nil {
				return nil, "", cloudstorage.Errorf(cloudstorage.CodeFailure, "parse box directory listing: %v", err)
			}
			items := make([]cloudstorage.Item, 0, len(payload.Entries))
			for _, raw := range payload.Entries {
				item, err := parseItem(raw)
				if err != nil {
					return nil, "", err
				}
				items = append(items, item)
			}
			next := ""
			if payload.Offset+payload.Limit < payload.TotalCount {
				next = strconv.Itoa(payload.Offset + payload.Limit)
			}
			return items, next, nil
		},

		DownloadFileRequest: func(item cloudstorage.Item) (string, string) {
			return http.MethodGet, Endpoint + "/2.0/files/" + item.ID + "/content"
		},

		GetThumbnailRequest: func(item cloudstorage.Item) (string, string, bool) {
			return http.MethodGet, Endpoint + "/2.0/files/" + item.ID + "/thumbnail.png", true
		},

		UploadFileRequest: func(dir cloudstorage.Item, filename string) (string, string, map[string]string, []byte, []byte) {
			headers := map[string]string{
				"Content-Type": "multipart/form-data; boundary=" + multipartBoundary,
			}
			attrs := struct {
				Name   string `json:"name"`
				Parent struct {
					ID string `json:"id"`
				} `json:"parent"`
			}{Name: filename}
			attrs.Parent.ID = dir.ID
			attrsJSON, _ := json.Marshal(attrs)

			var prefix strings.Builder
			fmt.Fprintf(&prefix, "--%s\r\n", multipartBoundary)
			prefix.WriteString("Content-Disposition: form-data; name=\"attributes\"\r\n\r\n")
			prefix.Write(attrsJSON)
			prefix.WriteString("\r\n")
			fmt.Fprintf(&prefix, "--%s\r\n", multipartBoundary)
			fmt.Fprintf(&prefix, "Content-Disposition: form-data; name=\"file\"; filename=\"%s\"\r\n", escapeHeader(filename))
			prefix.WriteString("Content-Type: application/octet-stream\r\n\r\n")

			suffix := "\r\n--" + multipartBoundary + "--"
			return http.MethodPost, uploadEndpoint, headers, []byte(prefix.String()), []byte(suffix)
		},
		UploadFileResponse: func(body []byte) (cloudstorage.Item, error) {
			var payload struct {
				Entries []json.RawMessage `json:"entries"`
			}
			if err := json.Unmarshal(body, &payload); err != nil || len(payload.Entries) == 0 {
				return cloudstorage.Item{}, cloudstorage.Errorf(cloudstorage.CodeFailure, "parse box upload response: %v", err)
			}
			return parseItem(payload.Entries[0])
		},

		DeleteItemRequest: func(item cloudstorage.Item) (string, string) {
			if item.IsDirectory() {
				return http.MethodDelete, Endpoint + "/2.0/folders/" + item.ID + "?recursive=true"
			}
			return http.MethodDelete, Endpoint + "/2.0/files/" + item.ID
		},

		CreateDirectoryRequest: func(parent cloudstorage.Item, name string) (string, string, map[string]string, []byte) {
			body := struct {
				Name   string `json:"name"`
				Parent struct {
					ID string `json:"id"`
				} `json:"parent"`
			}{Name: name}
			body.Parent.ID = parent.ID
			data, _ := json.Marshal(body)
			return http.MethodPost, Endpoint + "/2.0/folders", map[string]string{"Content-Type": "application/json"}, data
		},
		CreateDirectoryResponse: func(body []byte) (cloudstorage.Item, error) { return parseItem(body) },

		MoveItemRequest: func(source, destination cloudstorage.Item) (string, string, map[string]string, []byte) {
			method, url := itemEndpoint(source)
			body := struct {
				Parent struct {
					ID string `json:"id"`
				} `json:"parent"`
			}{}
			body.Parent.ID = destination.ID
			data, _ := json.Marshal(body)
			return method, url, map[string]string{"Content-Type": "application/json"}, data
		},
		MoveItemResponse: func(body []byte) (cloudstorage.Item, error) { return parseItem(body) },

		RenameItemRequest: func(item cloudstorage.Item, name string) (string, string, map[string]string, []byte) {
			method, url := itemEndpoint(item)
			data, _ := json.Marshal(struct {
				Name string `json:"name"`
			}{Name: name})
			return method, url, map[string]string{"Content-Type": "application/json"}, data
		},
		RenameItemResponse: func(body []byte) (cloudstorage.Item, error) { return parseItem(body) },
	}
}

func itemEndpoint(item cloudstorage.Item) (method, url string) {
	if item.IsDirectory() {
		return http.MethodPut, Endpoint + "/2.0/folders/" + item.ID
	}
	return http.MethodPut, Endpoint + "/2.0/files/" + item.ID
}

func parseItem(body []byte) (cloudstorage.Item, error) {
	var v struct {
		Type       string `json:"type"`
		Name       string `json:"name"`
		ID         string `json:"id"`
		Size       uint64 `json:"size"`
		ModifiedAt string `json:"modified_at"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return cloudstorage.Item{}, cloudstorage.Errorf(cloudstorage.CodeFailure, "parse box item: %v", err)
	}
	typ := cloudstorage.Unknown
	if v.Type == "folder" {
		typ = cloudstorage.Directory
	}
	item := cloudstorage.Item{ID: v.ID, Filename: v.Name, Type: typ}
	size := v.Size
	item.Size = &size
	if t, err := parseBoxTime(v.ModifiedAt); err == nil {
		item.ModTime = &t
	}
	return item, nil
}

// parseBoxTime parses Box's modified_at, an RFC 3339 timestamp with a
// numeric zone offset (e.g. "2016-01-02T03:04:05-08:00").
func parseBoxTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, cloudstorage.Errorf(cloudstorage.CodeFailure, "empty timestamp")
	}
	return time.Parse(time.RFC3339, s)
}

// escapeHeader mirrors util::Url::escapeHeader: quote characters are
// backslash-escaped so filenames containing '"' don't break the
// Content-Disposition header.
func escapeHeader(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
