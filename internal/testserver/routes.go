package testserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Echo is the body of the echo routes.
type Echo struct {
	Method  string              `json:"method"`
	URL     string              `json:"url"`
	Host    string              `json:"host"`
	Args    map[string][]string `json:"args"`
	Headers map[string][]string `json:"headers"`
	Cookies map[string]string   `json:"cookies"`
	Body    string              `json:"body"`
	Form    map[string][]string `json:"form,omitempty"`
	Files   map[string]File     `json:"files,omitempty"`
	JSON    json.RawMessage     `json:"json,omitempty"`
}

// File is an uploaded multipart file part.
type File struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
}

// Token is the /token response.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
	Scope       string `json:"scope,omitempty"`
}

// Document is served by /json.
type Document struct {
	Title  string   `json:"title"`
	Author string   `json:"author"`
	Pages  int      `json:"pages"`
	Tags   []string `json:"tags"`
}

// SampleDocument is the body of /json.
var SampleDocument = Document{
	Title:  "Sample Slide Show",
	Author: "Yours Truly",
	Pages:  2,
	Tags:   []string{"sample", "slides"},
}

func (s *Server) routes(r *gin.Engine) {
	r.Any("/anything", s.echo)
	for _, method := range []string{"PROPFIND", "REPORT"} {
		r.Handle(method, "/anything", s.echo)
	}
	r.GET("/get", s.echo)
	r.POST("/post", s.echo)
	r.PUT("/put", s.echo)
	r.PATCH("/patch", s.echo)
	r.DELETE("/delete", s.echo)

	r.GET("/cookies", s.cookies)
	r.GET("/cookies/set", s.setCookies)
	r.GET("/cookies/delete", s.deleteCookies)
	r.Any("/response-headers", s.responseHeaders)

	r.Any("/redirect/:n", s.redirect)
	r.Any("/redirect-to", s.redirectTo)
	r.Any("/status/:code", s.status)
	r.GET("/delay/:ms", s.delay)

	r.GET("/basic-auth/:user/:pass", s.basicAuth)
	r.GET("/bearer", s.bearer)
	r.POST("/token", s.token)

	r.GET("/links", s.links)
	r.GET("/json", func(c *gin.Context) { c.JSON(http.StatusOK, SampleDocument) })
	r.GET("/html", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte("<!DOCTYPE html><html><body><h1>Hello</h1></body></html>"))
	})
}

func (s *Server) echo(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	e := Echo{
		Method:  c.Request.Method,
		URL:     c.Request.URL.String(),
		Host:    c.Request.Host,
		Args:    c.Request.URL.Query(),
		Headers: c.Request.Header,
		Cookies: cookieMap(c.Request),
		Body:    string(body),
	}

	mt, params, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	switch {
	case mt == "application/x-www-form-urlencoded":
		e.Form, _ = url.ParseQuery(string(body))
	case mt == "multipart/form-data":
		if err := readMultipart(&e, body, params["boundary"]); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	case strings.HasSuffix(mt, "json") && json.Valid(body):
		e.JSON = body
	}

	c.JSON(http.StatusOK, e)
}

func readMultipart(e *Echo, body []byte, boundary string) error {
	mr := multipart.NewReader(bytes.NewReader(body), boundary)
	e.Form = map[string][]string{}
	e.Files = map[string]File{}
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		data, err := io.ReadAll(p)
		if err != nil {
			return err
		}
		if p.FileName() != "" {
			e.Files[p.FormName()] = File{
				Filename:    p.FileName(),
				ContentType: p.Header.Get("Content-Type"),
				Content:     string(data),
			}
			continue
		}
		e.Form[p.FormName()] = append(e.Form[p.FormName()], string(data))
	}
}

func cookieMap(r *http.Request) map[string]string {
	out := map[string]string{}
	for _, ck := range r.Cookies() {
		out[ck.Name] = ck.Value
	}
	return out
}

func (s *Server) cookies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cookies": cookieMap(c.Request)})
}

// setCookies sets every query parameter as a cookie, then redirects to /cookies.
func (s *Server) setCookies(c *gin.Context) {
	for name, values := range c.Request.URL.Query() {
		for _, v := range values {
			http.SetCookie(c.Writer, &http.Cookie{Name: name, Value: v, Path: "/"})
		}
	}
	c.Redirect(http.StatusFound, "/cookies")
}

// deleteCookies expires every cookie named in the query, then redirects to /cookies.
func (s *Server) deleteCookies(c *gin.Context) {
	for name := range c.Request.URL.Query() {
		http.SetCookie(c.Writer, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1})
	}
	c.Redirect(http.StatusFound, "/cookies")
}

// responseHeaders copies every query parameter into a response header.
func (s *Server) responseHeaders(c *gin.Context) {
	query := c.Request.URL.Query()
	for name, values := range query {
		for _, v := range values {
			c.Writer.Header().Add(name, v)
		}
	}
	c.JSON(http.StatusOK, query)
}

func (s *Server) redirect(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil || n < 1 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "n must be a positive integer"})
		return
	}
	if n == 1 {
		c.Redirect(http.StatusFound, "/get")
		return
	}
	c.Redirect(http.StatusFound, fmt.Sprintf("/redirect/%d", n-1))
}

func (s *Server) redirectTo(c *gin.Context) {
	target := c.Query("url")
	if target == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}
	code := http.StatusFound
	if raw := c.Query("status_code"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 300 || parsed > 399 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "status_code must be 3xx"})
			return
		}
		code = parsed
	}
	c.Header("Location", target)
	c.Status(code)
}

func (s *Server) status(c *gin.Context) {
	code, err := strconv.Atoi(c.Param("code"))
	if err != nil || code < 100 || code > 599 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid status code"})
		return
	}
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		c.Header("Location", "/get")
	case http.StatusUnauthorized:
		c.Header("WWW-Authenticate", `Basic realm="Fake Realm"`)
	}
	c.Status(code)
}

func (s *Server) delay(c *gin.Context) {
	ms, err := strconv.Atoi(c.Param("ms"))
	if err != nil || ms < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid delay"})
		return
	}
	select {
	case <-c.Request.Context().Done():
		return
	case <-time.After(time.Duration(ms) * time.Millisecond):
	}
	s.echo(c)
}

func (s *Server) basicAuth(c *gin.Context) {
	user, pass, ok := c.Request.BasicAuth()
	if !ok || user != c.Param("user") || pass != c.Param("pass") {
		c.Header("WWW-Authenticate", `Basic realm="Fake Realm"`)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "user": user})
}

func (s *Server) bearer(c *gin.Context) {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || token == "" {
		c.Header("WWW-Authenticate", "Bearer")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "token": token})
}

// token implements the OAuth2 client credentials grant. Credentials may come
// in the form body or as HTTP basic auth.
func (s *Server) token(c *gin.Context) {
	if c.PostForm("grant_type") != "client_credentials" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unsupported_grant_type"})
		return
	}

	id, secret, ok := c.Request.BasicAuth()
	if !ok {
		id, secret = c.PostForm("client_id"), c.PostForm("client_secret")
	}
	if id != s.clientID || secret != s.clientSecret {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_client"})
		return
	}

	n := s.tokens.Add(1)
	resp := Token{TokenType: "Bearer", Scope: c.PostForm("scope")}

	if s.signingKey == nil {
		resp.AccessToken = fmt.Sprintf("token-%d", n)
		resp.ExpiresIn = int(s.tokenTTL.Seconds())
		c.JSON(http.StatusOK, resp)
		return
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   id,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp.AccessToken = signed
	c.JSON(http.StatusOK, resp)
}

// links serves a paginated resource with a Link header.
func (s *Server) links(c *gin.Context) {
	pages, _ := strconv.Atoi(c.DefaultQuery("pages", "3"))
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pages = max(pages, 1)
	page = min(max(page, 1), pages)

	ref := func(p int, rel string) string {
		return fmt.Sprintf(`<%s/links?pages=%d&page=%d>; rel="%s"`, s.URL, pages, p, rel)
	}
	var links []string
	if page < pages {
		links = append(links, ref(page+1, "next"))
	}
	if page > 1 {
		links = append(links, ref(page-1, "prev"))
	}
	links = append(links, ref(1, "first"), ref(pages, "last"))

	c.Header("Link", strings.Join(links, ", "))
	c.JSON(http.StatusOK, gin.H{"page": page, "pages": pages})
}
