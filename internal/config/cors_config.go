package config

import "strings"

type Cors struct {
	file *FileConfig
}

var _ CorsConfig = Cors{}

type AllowedOrigins map[string]struct{}
type nullValue = struct{}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[origin]
	return ok
}

func (a AllowedOrigins) String() string {
	var origins []string
	for k := range a {
		origins = append(origins, k)
	}
	return strings.Join(origins, ", ")
}

// GetAllowedOrigins lists the dev frontends allowed to call the reference backend with credentials
func (c Cors) GetAllowedOrigins() AllowedOrigins {
	origins := AllowedOrigins{"http://localhost:5173": nullValue{}}
	if c.file != nil {
		for _, o := range c.file.AllowedOrigins {
			origins[o] = nullValue{}
		}
	}
	if extra := GetEnv("ALLOWED_ORIGINS", ""); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			origins[strings.TrimSpace(o)] = nullValue{}
		}
	}
	return origins
}

func (Cors) GetAllowedMethods() string {
	return "GET, POST, PUT, PATCH, DELETE"
}

func (Cors) GetAllowedHeaders() string {
	return "Content-Type, Authorization, X-Request-ID"
}
