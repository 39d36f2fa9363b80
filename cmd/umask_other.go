//go:build !unix

package cmd

import (
	"github.com/yoogottamk/sqlarfs/pkg/sqlar"
)

func processUmask() sqlar.FileMode {
	return sqlar.DefaultUmask
}
