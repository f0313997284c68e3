package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"github.com/hitoshi/mp3transcriber/internal/user"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandCreateAccount はアカウントを作成することを示す。
	CommandCreateAccount Command = "create-account"
	// CommandImportTranscription は文字起こし結果を取り込むことを示す。
	CommandImportTranscription Command = "import-transcription"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	case "create-account":
		return CommandCreateAccount
	case "import-transcription":
		return CommandImportTranscription
	default:
		return CommandServe
	}
}

// parseCreateAccountArgs はcreate-accountサブコマンドのフラグを解析する。
// --help指定時はpflag.ErrHelpを返す。
func parseCreateAccountArgs(args []string, usage io.Writer) (user.NewAccount, error) {
	var in user.NewAccount

	fs := pflag.NewFlagSet(string(CommandCreateAccount), pflag.ContinueOnError)
	fs.SetOutput(usage)
	fs.StringVar(&in.Username, "username", "", "login name (3-50 characters)")
	fs.StringVar(&in.Password, "password", "", "login password")
	fs.StringVar(&in.FirstName, "first-name", "", "first name, also the password of public links")
	fs.StringVar(&in.LastName, "last-name", "", "last name")
	fs.StringVar(&in.Email, "email", "", "e-mail address")
	fs.BoolVar(&in.IsAdmin, "admin", false, "grant administrator rights")

	if err := fs.Parse(args); err != nil {
		return user.NewAccount{}, err
	}

	if missing := missingFlags(fs, "username", "password", "first-name"); len(missing) > 0 {
		return user.NewAccount{}, fmt.Errorf("required flags are not set: %s", strings.Join(missing, ", "))
	}
	return in, nil
}

// importOptions はimport-transcriptionサブコマンドの引数。
type importOptions struct {
	OwnerID     string
	Filename    string
	TextPath    string
	SummaryPath string
}

// parseImportTranscriptionArgs はimport-transcriptionサブコマンドのフラグを解析する。
// --help指定時はpflag.ErrHelpを返す。
func parseImportTranscriptionArgs(args []string, usage io.Writer) (importOptions, error) {
	var opts importOptions

	fs := pflag.NewFlagSet(string(CommandImportTranscription), pflag.ContinueOnError)
	fs.SetOutput(usage)
	fs.StringVar(&opts.OwnerID, "owner", "", "account id of the owner")
	fs.StringVar(&opts.Filename, "filename", "", "original mp3 file name")
	fs.StringVar(&opts.TextPath, "text", "", "path to the transcript text file")
	fs.StringVar(&opts.SummaryPath, "summary", "", "path to the summary text file (optional)")

	if err := fs.Parse(args); err != nil {
		return importOptions{}, err
	}

	if missing := missingFlags(fs, "owner", "filename", "text"); len(missing) > 0 {
		return importOptions{}, fmt.Errorf("required flags are not set: %s", strings.Join(missing, ", "))
	}
	return opts, nil
}

// missingFlags は指定されなかった必須フラグ名を返す。
func missingFlags(fs *pflag.FlagSet, names ...string) []string {
	var missing []string
	for _, name := range names {
		if f := fs.Lookup(name); f == nil || strings.TrimSpace(f.Value.String()) == "" {
			missing = append(missing, "--"+name)
		}
	}
	return missing
}
