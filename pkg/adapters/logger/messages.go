package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Orchestration level messages (info)
		"Connecting to simulator at %s:%d":              "シミュレータ %s:%d に接続中",
		"Recording %s at %dx%d, %d FPS":                 "%s 録画します (%dx%d, %d FPS)",
		"Recording completed: %d frames in %d ticks":    "録画完了: %[2]d ティックで %[1]d フレーム",
		"Interrupted after %d frames, output finalized": "%d フレームで中断しました。出力は確定済みです",

		// Simulator adapters
		"Connecting to %s":                   "%s に接続中",
		"Starting synthetic world for %s:%d": "%s:%d 向けに合成ワールドを起動します",
		"Malformed bridge reply: %s":         "ブリッジからの不正な応答: %s",
		"Dropping image: %s":                 "画像を破棄します: %s",

		// Session
		"Previous settings: synchronous=%t fixed_delta=%g": "変更前の設定: synchronous=%t fixed_delta=%g",
		"Listing %s actors failed: %s":                     "%s アクターの一覧取得に失敗しました: %s",
		"Destroying stale actor %d failed: %s":             "残存アクター %d の破棄に失敗しました: %s",
		"Removed %d stale cameras":                         "残存カメラを %d 台削除しました",
		"Spawned vehicle %d after %d attempts":             "%[2]d 回目の試行で車両 %[1]d をスポーンしました",
		"Spawned camera %d":                                "カメラ %d をスポーンしました",
		"Teardown step %s failed: %s":                      "後片付けの手順 %s に失敗しました: %s",

		// Capture
		"Rejected image %d (%dx%d, %d bytes)": "画像 %d を拒否しました (%dx%d, %d バイト)",

		// Stepping loop
		"Stepping for %s at %d fps":                     "%s の間 %d fps でステップ実行します",
		"%d s simulated, %d frames written":             "%d 秒シミュレート, %d フレーム書き込み",
		"Interrupted after %d ticks":                    "%d ティックで中断しました",
		"Stepped %d ticks, wrote %d frames, skipped %d": "%d ティック実行, %d フレーム書き込み, %d スキップ",
		"State %s":                                      "状態 %s",
		"Failed to save debug frame: %s":                "デバッグフレームの保存に失敗しました: %s",

		// Encoder
		"Starting %s %v":                   "%s %v を起動します",
		"Encoder finished after %d frames": "%d フレームでエンコーダが終了しました",

		// Warnings
		"Container holds %d frames, %d were written": "コンテナには %d フレームありますが %d フレーム書き込みました",
		"Failed to close simulator connection: %s":   "シミュレータ接続のクローズに失敗しました: %s",
		"Failed to stat output: %s":                  "出力ファイルの情報取得に失敗しました: %s",
		"Failed to probe output: %s":                 "出力ファイルの解析に失敗しました: %s",
		"Failed to save session report: %s":          "セッションレポートの保存に失敗しました: %s",
		"Tracing shutdown failed: %s":                "トレースの終了処理に失敗しました: %s",

		// Errors
		"Failed to connect: %s": "接続に失敗しました: %s",
		"Setup failed: %s":      "セットアップに失敗しました: %s",
		"Recording failed: %s":  "録画に失敗しました: %s",
	})
}
