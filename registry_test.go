package clarion

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDatabase struct{ dsn string }

type testRepository struct{ db *testDatabase }

type testService struct{ repo *testRepository }

func TestRegister_RequiresExactlyOneOfInstanceOrFactory(t *testing.T) {
	reg := NewServiceRegistry()

	err := reg.Register("neither")
	require.ErrorIs(t, err, ErrRegistrationInvalid)

	err = reg.Register("both",
		WithInstance(&testDatabase{}),
		WithFactory(func(Dependencies) (any, error) { return &testDatabase{}, nil }))
	require.ErrorIs(t, err, ErrRegistrationInvalid)

	require.NoError(t, reg.Register("instance", WithInstance(&testDatabase{})))
	require.NoError(t, reg.Register("factory",
		WithFactory(func(Dependencies) (any, error) { return &testDatabase{}, nil })))
}

func TestRegister_OverwritesPriorRegistration(t *testing.T) {
	reg := NewServiceRegistry()
	require.NoError(t, reg.RegisterInstance("db", &testDatabase{dsn: "first"}))
	require.NoError(t, reg.RegisterInstance("db", &testDatabase{dsn: "second"}))

	instance, err := reg.Get("db")
	require.NoError(t, err)
	assert.Equal(t, "second", instance.(*testDatabase).dsn)
}

func TestGet_UnregisteredName(t *testing.T) {
	reg := NewServiceRegistry()
	_, err := reg.Get("ghost")
	require.ErrorIs(t, err, ErrServiceNotFound)
	assert.Contains(t, err.Error(), "ghost")
}

func TestSingleton_SameInstanceFactoryInvokedOnce(t *testing.T) {
	reg := NewServiceRegistry()
	calls := 0
	require.NoError(t, reg.RegisterSingleton("db", func(Dependencies) (any, error) {
		calls++
		return &testDatabase{}, nil
	}))

	first, err := reg.Get("db")
	require.NoError(t, err)
	second, err := reg.Get("db")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestSingleton_ConcurrentFirstAccess(t *testing.T) {
	reg := NewServiceRegistry()
	var calls int
	var callsMu sync.Mutex
	require.NoError(t, reg.RegisterSingleton("db", func(Dependencies) (any, error) {
		callsMu.Lock()
		calls++
		callsMu.Unlock()
		return &testDatabase{}, nil
	}))

	const goroutines = 32
	instances := make([]any, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			instance, err := reg.Get("db")
			require.NoError(t, err)
			instances[slot] = instance
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, calls, "factory must be invoked exactly once under concurrent first access")
	for _, instance := range instances {
		assert.Same(t, instances[0], instance)
	}
}

func TestTransient_DistinctInstancePerCall(t *testing.T) {
	reg := NewServiceRegistry()
	calls := 0
	require.NoError(t, reg.RegisterTransient("repo", func(Dependencies) (any, error) {
		calls++
		return &testRepository{}, nil
	}))

	const n = 5
	seen := make(map[any]bool, n)
	for i := 0; i < n; i++ {
		instance, err := reg.Get("repo")
		require.NoError(t, err)
		seen[instance] = true
	}

	assert.Len(t, seen, n)
	assert.Equal(t, n, calls)
}

func TestScoped_OneInstancePerScope(t *testing.T) {
	reg := NewServiceRegistry()
	require.NoError(t, reg.RegisterScoped("session", func(Dependencies) (any, error) {
		return &testRepository{}, nil
	}))

	a1, err := reg.GetInScope("session", "tenant-a")
	require.NoError(t, err)
	a2, err := reg.GetInScope("session", "tenant-a")
	require.NoError(t, err)
	b, err := reg.GetInScope("session", "tenant-b")
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)
}

func TestScoped_OmittedScopeIsDefault(t *testing.T) {
	reg := NewServiceRegistry()
	require.NoError(t, reg.RegisterScoped("session", func(Dependencies) (any, error) {
		return &testRepository{}, nil
	}))

	implicit, err := reg.Get("session")
	require.NoError(t, err)
	explicit, err := reg.GetInScope("session", DefaultScopeID)
	require.NoError(t, err)

	assert.Same(t, implicit, explicit)
}

func TestDependencyInjection_WiresSharedInstances(t *testing.T) {
	reg := NewServiceRegistry()
	require.NoError(t, reg.RegisterSingleton("db", func(Dependencies) (any, error) {
		return &testDatabase{dsn: "crm.db"}, nil
	}))
	require.NoError(t, reg.RegisterSingleton("repo", func(deps Dependencies) (any, error) {
		return &testRepository{db: deps["db"].(*testDatabase)}, nil
	}, "db"))
	require.NoError(t, reg.RegisterSingleton("svc", func(deps Dependencies) (any, error) {
		return &testService{repo: deps["repo"].(*testRepository)}, nil
	}, "repo"))

	svc, err := Resolve[*testService](reg, "svc")
	require.NoError(t, err)

	db, err := Resolve[*testDatabase](reg, "db")
	require.NoError(t, err)
	repo, err := Resolve[*testRepository](reg, "repo")
	require.NoError(t, err)

	assert.Same(t, repo, svc.repo)
	assert.Same(t, db, svc.repo.db)
}

func TestGet_CircularDependencyNamesFullCycle(t *testing.T) {
	reg := NewServiceRegistry()
	for _, link := range []struct{ name, dep string }{
		{"A", "B"}, {"B", "C"}, {"C", "A"},
	} {
		dep := link.dep
		require.NoError(t, reg.RegisterSingleton(link.name, func(deps Dependencies) (any, error) {
			return deps[dep], nil
		}, dep))
	}

	_, err := reg.Get("A")
	require.ErrorIs(t, err, ErrCircularDependency)
	assert.Contains(t, err.Error(), "A -> B -> C -> A")
}

func TestGet_FactoryErrorIsWrapped(t *testing.T) {
	reg := NewServiceRegistry()
	boom := errors.New("boom")
	require.NoError(t, reg.RegisterSingleton("db", func(Dependencies) (any, error) {
		return nil, boom
	}))

	_, err := reg.Get("db")
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "db")
}

func TestGet_FailedConstructionIsRetriedOnNextAccess(t *testing.T) {
	reg := NewServiceRegistry()
	attempts := 0
	require.NoError(t, reg.RegisterSingleton("flaky", func(Dependencies) (any, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("transient wiring failure")
		}
		return &testDatabase{}, nil
	}))

	_, err := reg.Get("flaky")
	require.Error(t, err)

	instance, err := reg.Get("flaky")
	require.NoError(t, err)
	assert.NotNil(t, instance)
	assert.Equal(t, 2, attempts)
}

func TestResolve_WrongType(t *testing.T) {
	reg := NewServiceRegistry()
	require.NoError(t, reg.RegisterInstance("db", &testDatabase{}))

	_, err := Resolve[*testRepository](reg, "db")
	require.ErrorIs(t, err, ErrServiceWrongType)
}

func TestGetAllByTag_ResolvesTaggedServices(t *testing.T) {
	reg := NewServiceRegistry()
	require.NoError(t, reg.Register("repo-contacts",
		WithFactory(func(Dependencies) (any, error) { return &testRepository{}, nil }),
		WithTags("repository")))
	require.NoError(t, reg.Register("repo-appointments",
		WithFactory(func(Dependencies) (any, error) { return &testRepository{}, nil }),
		WithTags("repository")))
	require.NoError(t, reg.Register("db",
		WithFactory(func(Dependencies) (any, error) { return &testDatabase{}, nil })))

	tagged, err := reg.GetAllByTag("repository")
	require.NoError(t, err)
	assert.Len(t, tagged, 2)
	assert.Contains(t, tagged, "repo-contacts")
	assert.Contains(t, tagged, "repo-appointments")
	assert.NotContains(t, tagged, "db")
}

func TestReset_DiscardsCachedInstances(t *testing.T) {
	reg := NewServiceRegistry()
	calls := 0
	require.NoError(t, reg.RegisterSingleton("db", func(Dependencies) (any, error) {
		calls++
		return &testDatabase{}, nil
	}))

	first, err := reg.Get("db")
	require.NoError(t, err)
	reg.Reset()
	second, err := reg.Get("db")
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, 2, calls)
}

func TestResetService_PurgesSingletonAndScopes(t *testing.T) {
	reg := NewServiceRegistry()
	require.NoError(t, reg.RegisterScoped("session", func(Dependencies) (any, error) {
		return &testRepository{}, nil
	}))
	require.NoError(t, reg.RegisterSingleton("db", func(Dependencies) (any, error) {
		return &testDatabase{}, nil
	}))

	scopedBefore, err := reg.GetInScope("session", "tenant-a")
	require.NoError(t, err)
	singletonBefore, err := reg.Get("db")
	require.NoError(t, err)

	require.NoError(t, reg.ResetService("session"))
	require.NoError(t, reg.ResetService("db"))

	scopedAfter, err := reg.GetInScope("session", "tenant-a")
	require.NoError(t, err)
	singletonAfter, err := reg.Get("db")
	require.NoError(t, err)

	assert.NotSame(t, scopedBefore, scopedAfter)
	assert.NotSame(t, singletonBefore, singletonAfter)

	require.ErrorIs(t, reg.ResetService("ghost"), ErrServiceNotFound)
}

func TestClearScope_OnlyAffectsTargetScope(t *testing.T) {
	reg := NewServiceRegistry()
	require.NoError(t, reg.RegisterScoped("session", func(Dependencies) (any, error) {
		return &testRepository{}, nil
	}))

	a, err := reg.GetInScope("session", "tenant-a")
	require.NoError(t, err)
	b, err := reg.GetInScope("session", "tenant-b")
	require.NoError(t, err)

	reg.ClearScope("tenant-a")

	aAfter, err := reg.GetInScope("session", "tenant-a")
	require.NoError(t, err)
	bAfter, err := reg.GetInScope("session", "tenant-b")
	require.NoError(t, err)

	assert.NotSame(t, a, aAfter)
	assert.Same(t, b, bAfter)
}

func TestGetServiceInfo_ReportsRegistrationState(t *testing.T) {
	reg := NewServiceRegistry()
	require.NoError(t, reg.Register("repo",
		WithFactory(func(Dependencies) (any, error) { return &testRepository{}, nil }),
		WithDependencies("db"),
		WithTags("repository", "storage")))

	info, err := reg.GetServiceInfo("repo")
	require.NoError(t, err)
	assert.Equal(t, "repo", info.Name)
	assert.Equal(t, LifecycleSingleton, info.Lifecycle)
	assert.Equal(t, []string{"db"}, info.Dependencies)
	assert.Equal(t, []string{"repository", "storage"}, info.Tags)
	assert.False(t, info.HasInstance)

	require.NoError(t, reg.RegisterInstance("db", &testDatabase{}))
	_, err = reg.Get("repo")
	require.NoError(t, err)

	info, err = reg.GetServiceInfo("repo")
	require.NoError(t, err)
	assert.True(t, info.HasInstance)

	_, err = reg.GetServiceInfo("ghost")
	require.ErrorIs(t, err, ErrServiceNotFound)
}

func TestListServices_SortedNames(t *testing.T) {
	reg := NewServiceRegistry()
	for _, name := range []string{"svc", "db", "repo"} {
		require.NoError(t, reg.RegisterInstance(name, name))
	}
	assert.Equal(t, []string{"db", "repo", "svc"}, reg.ListServices())
}

func TestConcurrentResolution_IndependentSingletons(t *testing.T) {
	reg := NewServiceRegistry()
	const services = 8
	for i := 0; i < services; i++ {
		name := fmt.Sprintf("svc-%d", i)
		require.NoError(t, reg.RegisterSingleton(name, func(Dependencies) (any, error) {
			return &testService{}, nil
		}))
	}

	var wg sync.WaitGroup
	for i := 0; i < services; i++ {
		for j := 0; j < 8; j++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, err := reg.Get(fmt.Sprintf("svc-%d", n))
				assert.NoError(t, err)
			}(i)
		}
	}
	wg.Wait()
}
