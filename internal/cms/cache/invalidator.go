package cache

import "context"

// Invalidator applies the coarse invalidation rules shared by every
// mutation path: single keys it knows about plus whole list namespaces.
type Invalidator struct {
	cache Cache
}

// NewInvalidator wraps c. A nil c is replaced with Noop.
func NewInvalidator(c Cache) *Invalidator {
	if c == nil {
		c = Noop{}
	}
	return &Invalidator{cache: c}
}

// InvalidatePost drops the given slugs and every list and search page.
func (i *Invalidator) InvalidatePost(ctx context.Context, slugs ...string) {
	keys := make([]string, 0, len(slugs))
	seen := make(map[string]struct{}, len(slugs))
	for _, s := range slugs {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		keys = append(keys, PostKey(s))
	}
	if len(keys) > 0 {
		i.cache.Delete(ctx, keys...)
	}
	i.InvalidateLists(ctx)
}

// InvalidateLists drops every list and search page.
func (i *Invalidator) InvalidateLists(ctx context.Context) {
	i.cache.DeleteByPrefix(ctx, PrefixPosts)
	i.cache.DeleteByPrefix(ctx, PrefixSearch)
}

// InvalidateCategory drops the category slugs and every list page.
func (i *Invalidator) InvalidateCategory(ctx context.Context, slugs ...string) {
	for _, s := range slugs {
		if s != "" {
			i.cache.Delete(ctx, CategoryKey(s))
		}
	}
	i.InvalidateLists(ctx)
}
