package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモード。引数なしの既定。
	CommandServe Command = "serve"
	// CommandWorker は購読フィードの定期フェッチと記事の間引きを行う。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを適用する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は稼働中サーバーの /health を確認する。distroless環境のDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandParse はローカルファイルの文書を解析してJSONで出力する。
	CommandParse Command = "parse"
)

var knownCommands = map[string]Command{
	"serve":       CommandServe,
	"worker":      CommandWorker,
	"migrate":     CommandMigrate,
	"healthcheck": CommandHealthcheck,
	"parse":       CommandParse,
}

// ParseCommand はコマンドライン引数の先頭からサブコマンドを解析する。
// 引数が空または未知のコマンドなら CommandServe。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := knownCommands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}

// RequiresDatabase はコマンドの実行に DATABASE_URL が必須かを返す。
// serve はメモリ保存で動けるため必須ではない。
func (c Command) RequiresDatabase() bool {
	return c == CommandWorker || c == CommandMigrate
}

// Standalone は設定やログの初期化なしで実行できるコマンドかを返す。
func (c Command) Standalone() bool {
	return c == CommandHealthcheck || c == CommandParse
}
