package handlers

// DeleteResult is the outcome of a DELETE disposition.
type DeleteResult struct {
	Status int
}

// HandleDelete returns 404 if absent, 403 if a directory, 204 on success,
// 500 on I/O failure. Refusal for CGI locations is decided by the router
// before this is ever called.
func HandleDelete(fs FileSystem, path string) DeleteResult {
	exists, isDir := fs.Stat(path)
	if !exists {
		return DeleteResult{Status: 404}
	}
	if isDir {
		return DeleteResult{Status: 403}
	}
	if err := fs.Remove(path); err != nil {
		return DeleteResult{Status: 500}
	}
	return DeleteResult{Status: 204}
}
