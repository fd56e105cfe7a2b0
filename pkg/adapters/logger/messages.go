package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Device and stream lifecycle (info)
		"Device %s ready: %s":          "デバイス %s の準備ができました: %s",
		"Device %s closed":             "デバイス %s を閉じました",
		"Stream started":               "ストリームを開始しました",
		"Stream stopped":               "ストリームを停止しました",
		"Stream shut down":             "ストリームを終了しました",
		"Consumer joined, %d active":   "利用者が参加しました（%d 件）",
		"Consumer left, %d active":     "利用者が離脱しました（%d 件）",
		"Stop ignored, stream is idle": "ストリームが停止中のため停止要求を無視しました",

		// CLI runtime
		"Streaming to %d consumers":     "%d 件の利用者へ配信中",
		"Upstream source: %s":           "上流ソース: %s",
		"Output saved to %s":            "出力を %s に保存しました",
		"Summary saved to %s":           "サマリーを %s に保存しました",
		"Interrupted, shutting down...": "中断されました。シャットダウン中...",

		// Scheduler
		"Producing %s in %s mode":                       "%s を %s モードで生成中",
		"Producer stopped after %d frames (%d dropped)": "プロデューサーを停止しました: %d フレーム（%d ドロップ）",
		"Tick source ended":                             "ティックソースが終了しました",
		"Upstream ended, continuing on timer":           "上流ソースが終了したため、タイマーで継続します",
		"Upstream dropped %d frames":                    "上流ソースが %d フレームをドロップしました",
		"Fitted %s image %dx%d at scale %.3f":           "%s 画像 %dx%d を倍率 %.3f で配置しました",
		"Published frame %d at %s":                      "フレーム %d を %s に送出しました",

		// Selection
		"Selected image %s (%dx%d)":                         "画像 %s (%dx%d) を選択しました",
		"No image selected, using placeholder":              "画像が選択されていないため、プレースホルダーを使用します",
		"Selected image is unusable, using placeholder: %v": "選択された画像は使用できないため、プレースホルダーを使用します: %v",
		"Image file %s changed, reloading":                  "画像ファイル %s が更新されたため再読み込みします",

		// Upstream capture
		"Replaying %d frames from %s":        "%d フレームを %s から再生中",
		"Replay finished":                    "再生が終了しました",
		"Launching browser in headless mode": "ヘッドレスモードでブラウザを起動中",
		"Launching browser in visible mode":  "表示モードでブラウザを起動中",
		"Navigating to %s":                   "%s へ移動中",
		"Starting screencast":                "スクリーンキャストを開始",
		"Browser closed":                     "ブラウザを閉じました",

		// Caption overlay
		"Generating caption overlay":       "キャプションを生成中",
		"Caption overlay generated: %dx%d": "キャプション生成完了: %dx%d",

		// Warnings
		"Frame buffer pool exhausted, skipping tick":        "フレームバッファが不足しているため、ティックをスキップします",
		"Failed to read selection: %v":                      "選択の読み込みに失敗しました: %v",
		"Skipping undecodable frame at %d ms: %v":           "%d ms のフレームをデコードできないためスキップします: %v",
		"Dropping malformed screencast frame: %v":           "不正なスクリーンキャストフレームを破棄します: %v",
		"Dropping undecodable screencast frame: %v":         "デコードできないスクリーンキャストフレームを破棄します: %v",
		"Browser caption failed, drawing plain caption: %v": "ブラウザでのキャプション生成に失敗したため、簡易描画します: %v",
		"Caption overlay disabled: %v":                      "キャプションを無効にしました: %v",
		"Failed to close tick source: %v":                   "ティックソースのクローズに失敗しました: %v",

		// Errors
		"Failed to compose frame: %v":        "フレームの合成に失敗しました: %v",
		"Failed to acquire frame buffer: %v": "フレームバッファの取得に失敗しました: %v",
		"Failed to publish frame %d: %v":     "フレーム %d の送出に失敗しました: %v",
		"Failed to release buffer %d: %v":    "バッファ %d の返却に失敗しました: %v",
		"Failed to start stream: %v":         "ストリームの開始に失敗しました: %v",
		"Failed to close device: %v":         "デバイスのクローズに失敗しました: %v",
		"Failed to write summary: %v":        "サマリーの書き込みに失敗しました: %v",
	})
}
