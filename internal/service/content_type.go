package service

import (
	"mime"
	"path"
	"strings"
)

const defaultContentType = "application/octet-stream"

// DetectContentType keeps the type the client declared and otherwise guesses
// from the file extension.
func DetectContentType(filename, declared string) string {
	if declared = strings.TrimSpace(declared); declared != "" {
		return declared
	}
	return contentTypeByExt(filename)
}

func contentTypeByExt(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	switch ext {
	case "":
		return defaultContentType
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".pdf":
		return "application/pdf"
	case ".zip":
		return "application/zip"
	case ".tar":
		return "application/x-tar"
	case ".gz":
		return "application/gzip"
	case ".mp4":
		return "video/mp4"
	}
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		return byExt
	}
	return defaultContentType
}
