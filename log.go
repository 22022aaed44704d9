package chromelens

import (
	"log"
	"os"
)

var (
	// Logger is the default logger NewBrowser and ExecAllocator fall back
	// to for Browser.logf/errf when no WithLogf/WithErrorf option is given.
	Logger = log.New(os.Stderr, "chromelens ", log.LstdFlags)
)
