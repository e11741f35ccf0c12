package lsp

import (
	"net/url"
	"path/filepath"
	"strings"
)

// FilePathToURI converts an absolute file path to a file:// URI.
func FilePathToURI(path string) DocumentURI {
	path = filepath.ToSlash(path)
	if !strings.HasPrefix(path, "/") {
		// Windows drive paths need a leading slash in the URI.
		path = "/" + path
	}
	u := url.URL{Scheme: "file", Path: path}
	return DocumentURI(u.String())
}

// URIToFilePath converts a file:// URI back to a file path. Non-file
// URIs are returned unchanged.
func URIToFilePath(uri DocumentURI) string {
	u, err := url.Parse(string(uri))
	if err != nil || u.Scheme != "file" {
		return string(uri)
	}
	path := u.Path
	// Strip the extra slash in front of Windows drive letters.
	if len(path) >= 3 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}
	return filepath.FromSlash(path)
}
