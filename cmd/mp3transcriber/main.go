// Command mp3transcriber は文字起こし結果の公開アクセスAPIサーバーと管理用サブコマンドを提供する。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/mp3transcriber/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
