package hclconfig

// fileRoot is the decoded form of a settings file. Every attribute is
// optional; omitted values keep their defaults.
type fileRoot struct {
	InstanceURL     *string         `hcl:"instance_url,optional"`
	Token           *string         `hcl:"token,optional"`
	APIVersion      *string         `hcl:"api_version,optional"`
	Timeout         *string         `hcl:"timeout,optional"`
	ModelsDir       *string         `hcl:"models_dir,optional"`
	Workers         *int            `hcl:"workers,optional"`
	RetryLimit      *int            `hcl:"retry_limit,optional"`
	RetryDelay      *string         `hcl:"retry_delay,optional"`
	ModelCacheSize  *int            `hcl:"model_cache_size,optional"`
	ObserveInterval *string         `hcl:"observe_interval,optional"`
	Archive         *archiveBlock   `hcl:"archive,block"`
	Functions       *functionsBlock `hcl:"functions,block"`
}

type archiveBlock struct {
	Kind      string  `hcl:"kind,label"`
	Path      *string `hcl:"path,optional"`
	Endpoint  *string `hcl:"endpoint,optional"`
	Region    *string `hcl:"region,optional"`
	Bucket    *string `hcl:"bucket,optional"`
	Prefix    *string `hcl:"prefix,optional"`
	AccessKey *string `hcl:"access_key,optional"`
	SecretKey *string `hcl:"secret_key,optional"`
	UseSSL    *bool   `hcl:"use_ssl,optional"`
}

type functionsBlock struct {
	Listen          *string        `hcl:"listen,optional"`
	ParentCacheSize *int           `hcl:"parent_cache_size,optional"`
	Relationship    *string        `hcl:"relationship,optional"`
	SocketIO        *socketIOBlock `hcl:"socketio,block"`
}

type socketIOBlock struct {
	URL       string  `hcl:"url"`
	Namespace *string `hcl:"namespace,optional"`
	Event     *string `hcl:"event,optional"`
	Timeout   *string `hcl:"timeout,optional"`
}
