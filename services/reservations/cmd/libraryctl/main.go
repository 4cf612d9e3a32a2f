// Command libraryctl checks reservation requests against the branch policy
// offline and queries a running reservations API.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
