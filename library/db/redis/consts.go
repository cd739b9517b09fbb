package redis

// DefaultKeyPrefix namespaces every key written by the cms.
const DefaultKeyPrefix = "blog/"
