package vecindex

import "errors"

var (
	ErrMissingRepoName = errors.New("query filter requires repo_name")
	ErrMissingVersion  = errors.New("query filter requires version")
)
