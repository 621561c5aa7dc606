package hcl_adapter

import "github.com/hashicorp/hcl/v2"

// fileRoot is a struct used to decode all possible top-level blocks from any file.
type fileRoot struct {
	Runs    []*runBlock    `hcl:"run,block"`
	Sources []*sourceBlock `hcl:"source,block"`
	Guards  []*guardBlock  `hcl:"guard,block"`
	Events  []*eventsBlock `hcl:"events,block"`
	Remain  hcl.Body       `hcl:",remain"`
}

type runBlock struct {
	Name            string `hcl:"name,label"`
	Root            string `hcl:"root"`
	MaxConcurrency  int    `hcl:"max_concurrency,optional"`
	MaxCalls        int64  `hcl:"max_calls,optional"`
	TransientPolicy string `hcl:"transient_policy,optional"`
	GracePeriod     string `hcl:"grace_period,optional"`
	CallTimeout     string `hcl:"call_timeout,optional"`
	Period          string `hcl:"period,optional"`
}

// sourceBlock defers decoding of its body until the type label is known.
type sourceBlock struct {
	Type string   `hcl:"type,label"`
	Body hcl.Body `hcl:",remain"`
}

type httpSourceBody struct {
	ItemURL      string            `hcl:"item_url"`
	ChildrenPath string            `hcl:"children_path,optional"`
	MetricPath   string            `hcl:"metric_path,optional"`
	IndexID      string            `hcl:"index_id,optional"`
	IndexURL     string            `hcl:"index_url,optional"`
	IndexLimit   int               `hcl:"index_limit,optional"`
	Headers      map[string]string `hcl:"headers,optional"`
}

type staticSourceBody struct {
	File string `hcl:"file"`
}

type guardBlock struct {
	Type     string `hcl:"type,label"`
	Addr     string `hcl:"addr"`
	Password string `hcl:"password,optional"`
	DB       int    `hcl:"db,optional"`
	Prefix   string `hcl:"prefix,optional"`
	TTL      string `hcl:"ttl,optional"`
}

type eventsBlock struct {
	Type               string `hcl:"type,label"`
	URL                string `hcl:"url"`
	Namespace          string `hcl:"namespace,optional"`
	Event              string `hcl:"event,optional"`
	InsecureSkipVerify bool   `hcl:"insecure_skip_verify,optional"`
}
