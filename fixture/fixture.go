// Package fixture serves a sample login page shaped like the pages the check
// inspects by default. It backs `pagecheck fixture` and the package tests.
package fixture

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"pagecheck/logger"
)

// LoginConfig is what the sample page caches in localStorage
type LoginConfig struct {
	Title       string `json:"title"`
	Background  string `json:"background"`
	ShowCaptcha bool   `json:"showCaptcha"`
}

// DefaultLoginConfig is served by /api/login-config
var DefaultLoginConfig = LoginConfig{
	Title:      "Sign In",
	Background: "/static/login-bg.png",
}

const loginPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Admin Console</title>
</head>
<body>
<div class="login" style="background-image: url(/static/login-bg.png); background-size: cover">
  <form class="login-form">
    <h3 class="title">Sign In</h3>
    <input name="username" placeholder="Username">
    <input name="password" type="password" placeholder="Password">
    <button type="submit">Log in</button>
  </form>
</div>
<script>
(function () {
  var mode = new URLSearchParams(location.search).get("config") || "valid";
  console.log("login page booted");
  if (mode === "absent") {
    localStorage.removeItem("login_config");
    console.warn("login config cache disabled");
    return;
  }
  if (mode === "malformed") {
    localStorage.setItem("login_config", "{title: Sign In");
    console.error("wrote malformed login config");
    return;
  }
  fetch("/api/login-config")
    .then(function (r) { return r.json(); })
    .then(function (cfg) {
      localStorage.setItem("login_config", JSON.stringify(cfg));
      console.log("login config cached", cfg.title);
    })
    .catch(function (e) { console.error("login config fetch failed", String(e)); });
})();
</script>
</body>
</html>
`

// NewRouter returns the fixture routes
func NewRouter() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/", servePage).Methods("GET")
	router.HandleFunc("/login", servePage).Methods("GET")
	router.HandleFunc("/api/login-config", serveLoginConfig).Methods("GET")
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.S().Warnf("Failed to write health response: %v", err)
		}
	}).Methods("GET")
	router.Use(logRequests)
	return router
}

func servePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(loginPage)); err != nil {
		logger.S().Warnf("Failed to write login page: %v", err)
	}
}

func serveLoginConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(DefaultLoginConfig); err != nil {
		logger.S().Warnf("Failed to encode login config: %v", err)
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.S().Debugf("fixture %s %s (%v)", r.Method, r.URL.RequestURI(), time.Since(start))
	})
}

// NewServer returns an http.Server for the fixture on addr
func NewServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
