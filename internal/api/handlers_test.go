// internal/api/handlers_test.go
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/motionx/DubDirector/internal/di"
	"github.com/motionx/DubDirector/internal/models"
	"github.com/motionx/DubDirector/internal/services"
)

// 构建测试路由：远端依赖全部指向传入的测试服务器
func newTestRouter(t *testing.T, storeURL, emotionURL, ttsURL, voiceURL string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	directorService := services.NewDirectorService(
		services.NewScriptStoreService(storeURL),
		services.NewEmotionService(emotionURL),
		services.NewTTSService(ttsURL, ""),
	)

	// WebSocket 处理器从容器取会话服务
	container := di.GetContainer()
	container.Clear()
	container.Register("director", directorService)

	handler := NewHandler(
		directorService,
		services.NewVoiceService(voiceURL),
		services.NewUploadService(storeURL),
		services.NewExportService(),
	)

	r := gin.New()
	api := r.Group("/api")
	{
		api.GET("/voices", handler.GetVoices)

		sessions := api.Group("/sessions")
		{
			sessions.POST("", handler.CreateSession)
			sessions.GET("/:id", handler.GetSession)
			sessions.DELETE("/:id", handler.CloseSession)
			sessions.PUT("/:id/view-range", handler.SetViewRange)
			sessions.POST("/:id/lines/:line_id/selection", handler.ToggleSelection)
			sessions.POST("/:id/selection/toggle-all", handler.ToggleSelectAllInView)
			sessions.PUT("/:id/lines/:line_id/voice", handler.SetVoice)
			sessions.POST("/:id/cast", handler.CastVoice)
			sessions.POST("/:id/emotions", handler.RequestEmotionTags)
			sessions.POST("/:id/audio", handler.RequestAudio)
			sessions.POST("/:id/playback/toggle", handler.TogglePlayback)
			sessions.GET("/:id/audio/:line_id", handler.GetLineAudio)
			sessions.GET("/:id/export", handler.ExportAudio)
		}
	}
	return r
}

// 远端剧本存储的测试服务器：GET 返回固定剧本，写入一律成功
func newScriptedStoreServer(lines []models.ScriptLine) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]interface{}{"script": lines})
		case http.MethodPatch:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusCreated)
		}
	}))
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Buffer
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewBuffer(data)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder) *APIResponse {
	t.Helper()
	var response APIResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("解析响应失败: %v (body=%s)", err, recorder.Body.String())
	}
	return &response
}

// 创建会话并返回会话ID
func createTestSession(t *testing.T, router *gin.Engine) string {
	t.Helper()

	recorder := doJSON(t, router, http.MethodPost, "/api/sessions", CreateSessionRequest{
		SeriesID: "s1", EpisodeID: "ep1", EpisodeLabel: "7",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("创建会话状态码 = %d, body=%s", recorder.Code, recorder.Body.String())
	}

	response := decodeResponse(t, recorder)
	data, _ := json.Marshal(response.Data)
	var snapshot services.SessionSnapshot
	json.Unmarshal(data, &snapshot)
	if snapshot.ID == "" {
		t.Fatal("创建响应里应该包含会话ID")
	}
	return snapshot.ID
}

// TestCreateAndGetSession 创建会话并读取快照
func TestCreateAndGetSession(t *testing.T) {
	store := newScriptedStoreServer([]models.ScriptLine{
		{ID: "1_0", PanelNumber: 1, Characters: []string{"ユキ"}, Dialogue: "おはよう"},
		{ID: "2_0", PanelNumber: 2, Dialogue: "……"},
	})
	defer store.Close()

	router := newTestRouter(t, store.URL, store.URL, store.URL, store.URL)
	sessionID := createTestSession(t, router)

	recorder := doJSON(t, router, http.MethodGet, "/api/sessions/"+sessionID, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("读取会话状态码 = %d", recorder.Code)
	}

	response := decodeResponse(t, recorder)
	if !response.Success {
		t.Fatalf("响应应该成功: %+v", response.Error)
	}

	data, _ := json.Marshal(response.Data)
	var snapshot services.SessionSnapshot
	json.Unmarshal(data, &snapshot)
	if snapshot.TotalLines != 2 {
		t.Errorf("快照行数 = %d, 期望 2", snapshot.TotalLines)
	}
	if snapshot.MinPanel != 1 || snapshot.MaxPanel != 2 {
		t.Errorf("panel 范围 = [%d,%d], 期望 [1,2]", snapshot.MinPanel, snapshot.MaxPanel)
	}
}

// TestGetSessionNotFound 不存在的会话返回404信封
func TestGetSessionNotFound(t *testing.T) {
	store := newScriptedStoreServer(nil)
	defer store.Close()

	router := newTestRouter(t, store.URL, store.URL, store.URL, store.URL)

	recorder := doJSON(t, router, http.MethodGet, "/api/sessions/no-such-session", nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("状态码 = %d, 期望 404", recorder.Code)
	}

	response := decodeResponse(t, recorder)
	if response.Success || response.Error == nil {
		t.Fatalf("应该是错误信封: %s", recorder.Body.String())
	}
	if response.Error.Code != ErrorNotFound {
		t.Errorf("错误代码 = %s, 期望 %s", response.Error.Code, ErrorNotFound)
	}
}

// TestCreateSessionValidation 缺少必填字段返回400
func TestCreateSessionValidation(t *testing.T) {
	store := newScriptedStoreServer(nil)
	defer store.Close()

	router := newTestRouter(t, store.URL, store.URL, store.URL, store.URL)

	recorder := doJSON(t, router, http.MethodPost, "/api/sessions", CreateSessionRequest{SeriesID: "s1"})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("状态码 = %d, 期望 400", recorder.Code)
	}
}

// TestVoiceAssignmentEndpoints 单行与按角色的配音指派
func TestVoiceAssignmentEndpoints(t *testing.T) {
	store := newScriptedStoreServer([]models.ScriptLine{
		{ID: "1_0", PanelNumber: 1, Characters: []string{"ユキ"}, Dialogue: "A"},
		{ID: "2_0", PanelNumber: 2, Characters: []string{"ユキ"}, Dialogue: "B"},
		{ID: "3_0", PanelNumber: 3, Characters: []string{"タロウ"}, Dialogue: "C"},
	})
	defer store.Close()

	router := newTestRouter(t, store.URL, store.URL, store.URL, store.URL)
	sessionID := createTestSession(t, router)

	recorder := doJSON(t, router, http.MethodPut,
		"/api/sessions/"+sessionID+"/lines/1_0/voice", SetVoiceRequest{VoiceID: "voice_a"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("单行指派状态码 = %d", recorder.Code)
	}

	recorder = doJSON(t, router, http.MethodPost,
		"/api/sessions/"+sessionID+"/cast", CastVoiceRequest{Character: "ユキ", VoiceID: "voice_yuki"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("批量指派状态码 = %d", recorder.Code)
	}

	response := decodeResponse(t, recorder)
	data, _ := json.Marshal(response.Data)
	var result struct {
		AppliedCount int `json:"applied_count"`
	}
	json.Unmarshal(data, &result)
	if result.AppliedCount != 2 {
		t.Errorf("受影响行数 = %d, 期望 2", result.AppliedCount)
	}

	// 不存在的行返回400
	recorder = doJSON(t, router, http.MethodPut,
		"/api/sessions/"+sessionID+"/lines/99_0/voice", SetVoiceRequest{VoiceID: "voice_a"})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("不存在的行指派状态码 = %d, 期望 400", recorder.Code)
	}
}

// TestEmotionEndpointValidation 含无效行的分类提交整批拒绝
func TestEmotionEndpointValidation(t *testing.T) {
	store := newScriptedStoreServer([]models.ScriptLine{
		{ID: "1_0", PanelNumber: 1, Dialogue: "A"},
	})
	defer store.Close()

	router := newTestRouter(t, store.URL, store.URL, store.URL, store.URL)
	sessionID := createTestSession(t, router)

	recorder := doJSON(t, router, http.MethodPost,
		"/api/sessions/"+sessionID+"/emotions", LineBatchRequest{LineIDs: []string{"1_0", "99_0"}})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("状态码 = %d, 期望 400", recorder.Code)
	}

	response := decodeResponse(t, recorder)
	if response.Error == nil || response.Error.Code != ErrorBadRequest {
		t.Errorf("错误信封 = %s", recorder.Body.String())
	}
}

// TestAudioPipelineEndpoints 合成提交、音频读取与导出的全链路
func TestAudioPipelineEndpoints(t *testing.T) {
	// 剧本行已带配音与标签，可直接提交合成
	store := newScriptedStoreServer([]models.ScriptLine{
		{ID: "1_0", PanelNumber: 1, Dialogue: "A", VoiceID: "voice_a", SuggestedEmotion: "[Happy]"},
	})
	defer store.Close()

	tts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("mp3-bytes"))
	}))
	defer tts.Close()

	router := newTestRouter(t, store.URL, store.URL, tts.URL, store.URL)
	sessionID := createTestSession(t, router)

	// 没有任何制品时导出是400
	recorder := doJSON(t, router, http.MethodGet, "/api/sessions/"+sessionID+"/export", nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("空导出状态码 = %d, 期望 400", recorder.Code)
	}
	response := decodeResponse(t, recorder)
	if response.Error == nil || response.Error.Code != ErrorExportDataEmpty {
		t.Errorf("空导出错误代码 = %+v", response.Error)
	}

	// 提交合成，受理即返回202
	recorder = doJSON(t, router, http.MethodPost,
		"/api/sessions/"+sessionID+"/audio", LineBatchRequest{LineIDs: []string{"1_0"}})
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("合成提交状态码 = %d, 期望 202, body=%s", recorder.Code, recorder.Body.String())
	}

	// 轮询等待后台合成完成
	deadline := time.Now().Add(5 * time.Second)
	for {
		recorder = doJSON(t, router, http.MethodGet, "/api/sessions/"+sessionID+"/audio/1_0", nil)
		if recorder.Code == http.StatusOK {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("等待合成完成超时, 最后状态码 = %d", recorder.Code)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if recorder.Body.String() != "mp3-bytes" {
		t.Errorf("音频内容 = %q", recorder.Body.String())
	}
	if contentType := recorder.Header().Get("Content-Type"); contentType != "audio/mpeg" {
		t.Errorf("Content-Type = %s, 期望 audio/mpeg", contentType)
	}

	// 播放切换
	recorder = doJSON(t, router, http.MethodPost,
		"/api/sessions/"+sessionID+"/playback/toggle", PlaybackRequest{LineID: "1_0"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("播放切换状态码 = %d", recorder.Code)
	}

	// 导出ZIP下载
	recorder = doJSON(t, router, http.MethodGet, "/api/sessions/"+sessionID+"/export", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("导出状态码 = %d", recorder.Code)
	}
	if contentType := recorder.Header().Get("Content-Type"); contentType != "application/zip" {
		t.Errorf("导出 Content-Type = %s", contentType)
	}
	if disposition := recorder.Header().Get("Content-Disposition"); disposition != `attachment; filename="Episode_7_Audio_Export.zip"` {
		t.Errorf("Content-Disposition = %s", disposition)
	}
}

// TestGetVoicesEndpoint 声音目录端点
func TestGetVoicesEndpoint(t *testing.T) {
	store := newScriptedStoreServer(nil)
	defer store.Close()

	voices := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"voices": []models.Voice{{VoiceID: "voice_a", Name: "葵", Category: "female"}},
		})
	}))
	defer voices.Close()

	router := newTestRouter(t, store.URL, store.URL, store.URL, voices.URL)

	recorder := doJSON(t, router, http.MethodGet, "/api/voices", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("状态码 = %d", recorder.Code)
	}

	response := decodeResponse(t, recorder)
	if !response.Success {
		t.Fatalf("响应应该成功: %s", recorder.Body.String())
	}
}

// TestCloseSessionEndpoint 关闭会话后再访问返回404
func TestCloseSessionEndpoint(t *testing.T) {
	store := newScriptedStoreServer(nil)
	defer store.Close()

	router := newTestRouter(t, store.URL, store.URL, store.URL, store.URL)
	sessionID := createTestSession(t, router)

	recorder := doJSON(t, router, http.MethodDelete, "/api/sessions/"+sessionID, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("关闭会话状态码 = %d", recorder.Code)
	}

	recorder = doJSON(t, router, http.MethodGet, "/api/sessions/"+sessionID, nil)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("关闭后访问状态码 = %d, 期望 404", recorder.Code)
	}
}
